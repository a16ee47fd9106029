package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/teologia/internal/models"
)

func tempStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(Options{Path: filepath.Join(t.TempDir(), "dados.json")})
	require.NoError(t, err)
	return s
}

func writeRaw(t *testing.T, s *FileStore, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))
}

func assertHasDefaults(t *testing.T, topics models.TopicSet) {
	t.Helper()
	for _, d := range models.DefaultTopics() {
		assert.True(t, topics.Contains(d), "missing default topic %q", d)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	s := tempStore(t)

	c, report, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, StateMissing, report.State)
	assert.Empty(t, c.Studies)
	assert.NotNil(t, c.Studies)
	assert.Equal(t, models.DefaultTopics(), c.Topics)
}

func TestLoad_MissingFileDefaultsAreACopy(t *testing.T) {
	s := tempStore(t)

	c, _, err := s.Load()
	require.NoError(t, err)
	c.Topics.Add("Nova")

	again, _, err := s.Load()
	require.NoError(t, err)
	assert.False(t, again.Topics.Contains("Nova"))
}

func TestLoad_CorruptedFileRecovers(t *testing.T) {
	for name, content := range map[string]string{
		"truncated":   `{"temas": ["A"], "estudos": [`,
		"not json":    "isto não é json",
		"wrong shape": `{"temas": "A", "estudos": 3}`,
		"array":       `[1, 2, 3]`,
	} {
		t.Run(name, func(t *testing.T) {
			s := tempStore(t)
			writeRaw(t, s, content)

			c, report, err := s.Load()
			require.NoError(t, err)
			assert.Equal(t, StateRecovered, report.State)
			assert.Error(t, report.Err)
			assert.Empty(t, c.Studies)
			assertHasDefaults(t, c.Topics)
		})
	}
}

func TestLoad_AbsentKeysDefault(t *testing.T) {
	s := tempStore(t)
	writeRaw(t, s, `{}`)

	c, report, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, report.State)
	assert.NotEmpty(t, report.Checksum)
	assert.Equal(t, models.DefaultTopics(), c.Topics)
	assert.Empty(t, c.Studies)
}

func TestLoad_AppendsMissingDefaultsPreservingOrder(t *testing.T) {
	s := tempStore(t)
	writeRaw(t, s, `{"temas": ["Patrística", "Apologética"], "estudos": []}`)

	c, _, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "Patrística", c.Topics[0])
	assert.Equal(t, "Apologética", c.Topics[1])
	assert.Len(t, c.Topics, 10)
	assertHasDefaults(t, c.Topics)
}

func TestLoad_BackfillsLegacyTimestamps(t *testing.T) {
	s := tempStore(t)
	writeRaw(t, s, `{"temas": [], "estudos": [
		{"id": "1", "titulo": "a", "tema": "Outros", "criado_em": "01/02/2023 10:00"},
		{"id": "2", "titulo": "b", "tema": "Outros", "criado_em_iso": "2023-02-01T10:00:00.000000"},
		{"id": "3", "titulo": "c", "tema": "Outros"}
	]}`)

	c, report, err := s.Load()
	require.NoError(t, err)
	require.Len(t, c.Studies, 3)

	assert.Equal(t, "01/02/2023 10:00", c.Studies[0].CreatedAt)
	assert.Equal(t, "01/02/2023 10:00", c.Studies[0].CreatedAtDisplay)
	assert.Equal(t, "2023-02-01T10:00:00.000000", c.Studies[1].CreatedAtDisplay)
	assert.Empty(t, c.Studies[2].CreatedAt)
	assert.Empty(t, c.Studies[2].CreatedAtDisplay)

	assert.Contains(t, report.Applied, "backfill-timestamps")
	assert.Contains(t, report.Applied, "non-nil-tags")
	for _, st := range c.Studies {
		assert.NotNil(t, st.Tags)
	}
}

func TestLoad_RegistersUnknownStudyTopics(t *testing.T) {
	s := tempStore(t)
	writeRaw(t, s, `{"temas": ["Outros"], "estudos": [{"id": "1", "titulo": "a", "tema": "Escatologia", "tags": []}]}`)

	c, report, err := s.Load()
	require.NoError(t, err)
	assert.True(t, c.Topics.Contains("Escatologia"))
	assert.Equal(t, []string{"register-study-topics"}, report.Applied)
}

func TestLoad_PermissionErrorPropagates(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	s := tempStore(t)
	writeRaw(t, s, `{}`)
	require.NoError(t, os.Chmod(s.Path(), 0o000))
	t.Cleanup(func() { _ = os.Chmod(s.Path(), 0o644) })

	_, _, err := s.Load()
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := tempStore(t)
	in := models.Collection{
		Topics: append(models.DefaultTopics(), "Pneumatologia"),
		Studies: []models.Study{{
			ID:               "abc",
			Title:            "Justificação pela fé",
			Topic:            "Pneumatologia",
			Body:             "linha 1\nlinha 2",
			Tags:             []string{"graça", "Romanos"},
			CreatedAt:        "2024-01-02T03:04:05.000000",
			CreatedAtDisplay: "02/01/2024 03:04",
		}},
	}

	_, err := s.Save(in)
	require.NoError(t, err)

	first, report, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, report.State)
	assert.Empty(t, report.Applied)
	assert.Equal(t, in, first)

	_, err = s.Save(first)
	require.NoError(t, err)
	second, _, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSave_LiteralNonASCIIAndIndent(t *testing.T) {
	s := tempStore(t)
	c := models.NewCollection(models.DefaultTopics())
	c.Studies = append(c.Studies, models.Study{ID: "1", Title: "Fé & <obras>", Topic: "Outros"})

	_, err := s.Save(c)
	require.NoError(t, err)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "Línguas Originais (Hebraico)")
	assert.Contains(t, text, "Fé & <obras>")
	assert.NotContains(t, text, `\u00`)
	assert.True(t, strings.HasPrefix(text, "{\n  \"temas\": [\n    \""))
	assert.Contains(t, text, `"tags": []`)
}

func TestSave_ChecksumMatchesLoad(t *testing.T) {
	s := tempStore(t)
	sum, err := s.Save(models.NewCollection(models.DefaultTopics()))
	require.NoError(t, err)

	_, report, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, sum, report.Checksum)
}

func TestSave_OverwritesCorruptedFile(t *testing.T) {
	s := tempStore(t)
	writeRaw(t, s, "{{{")

	c, report, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, StateRecovered, report.State)

	_, err = s.Save(c)
	require.NoError(t, err)

	_, report, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, report.State)
}

func TestSave_CreatesParentDirs(t *testing.T) {
	s, err := NewFileStore(Options{Path: filepath.Join(t.TempDir(), "a", "b", "dados.json")})
	require.NoError(t, err)

	_, err = s.Save(models.NewCollection(models.DefaultTopics()))
	require.NoError(t, err)
	_, err = os.Stat(s.Path())
	assert.NoError(t, err)
}

func TestSave_NoLeftoverTempFiles(t *testing.T) {
	s := tempStore(t)
	for i := 0; i < 3; i++ {
		_, err := s.Save(models.NewCollection(models.DefaultTopics()))
		require.NoError(t, err)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(s.Path()), ".teologia-tmp-*"))
	assert.Empty(t, matches)
}

func TestSave_FailureLeavesPriorContent(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	s := tempStore(t)
	_, err := s.Save(models.NewCollection(models.TopicSet{"A"}))
	require.NoError(t, err)
	before, _ := os.ReadFile(s.Path())

	dir := filepath.Dir(s.Path())
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	_, err = s.Save(models.NewCollection(models.TopicSet{"B"}))
	assert.Error(t, err)

	after, _ := os.ReadFile(s.Path())
	assert.Equal(t, before, after)
}

func TestNewFileStore_CustomDefaults(t *testing.T) {
	s, err := NewFileStore(Options{
		Path:          filepath.Join(t.TempDir(), "d.json"),
		DefaultTopics: models.TopicSet{"X", "Y", "X"},
	})
	require.NoError(t, err)

	c, _, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, models.TopicSet{"X", "Y"}, c.Topics)
}

func TestNewFileStore_Rejects(t *testing.T) {
	_, err := NewFileStore(Options{})
	assert.Error(t, err)

	_, err = NewFileStore(Options{Path: t.TempDir()})
	assert.Error(t, err)
}
