package mcpserver

// StudyFormatContract describes how studies are stored and which fields the
// create tools accept.
const StudyFormatContract = `# Study Library Format

All studies live in one UTF-8 JSON file with two keys:

` + "```" + `json
{
  "temas": ["Teologia Sistemática", "...", "Outros"],
  "estudos": [
    {
      "id": "3f6c1a2e-...",
      "titulo": "A prova da fé",
      "tema": "Apologética",
      "resumo": "Short summary",
      "anotacoes": "Free-form notes, may span lines",
      "link": "https://example.com",
      "tags": ["fé", "provações"],
      "criado_em_iso": "2025-04-20T08:15:30.250000",
      "criado_em": "20/04/2025 08:15"
    }
  ]
}
` + "```" + `

## Rules

1. **titulo is required.** A create call with a blank title stores nothing,
   although a new topic passed along is still registered.
2. **Topic resolution:** ` + "`new_topic`" + ` wins over ` + "`topic`" + `; with neither the study
   is filed under "Outros". Unknown topics are added to the topic list.
3. **Tags** are given as one comma-separated string; blanks are dropped.
4. **Timestamps and ids** are assigned by the server; never send them.
5. **Search** is case-insensitive substring matching on the title, summary,
   each tag and each single line of the notes. The topic is not searched;
   use list_topic_studies for that.
6. **Language:** field names are Portuguese schema keys; values may use any
   language. Non-ASCII text is stored literally.

## Markdown import

` + "`create_study_from_markdown`" + ` accepts a note with optional YAML frontmatter:

` + "```" + `markdown
---
titulo: Justificação pela fé
tema: Teologia Sistemática
resumo: Romanos 3 a 5
link: https://example.com/romanos
tags: [soteriologia, paulo]
---

# Justificação pela fé

Notas do estudo. Inline #hashtags become tags too.
` + "```" + `

English keys (title, topic, summary, url) are accepted as well. Without a
title key the first "# " heading is used.
`
