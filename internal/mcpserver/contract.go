package mcpserver

// NoteFormatContract describes the inline capture syntax that note content
// may carry. LLM consumers should read it before creating notes.
const NoteFormatContract = `# Ansuz Note Capture Format

Notes are plain text organized as pages > sections > notes.

## Inline syntax

` + "```" + `text
- buy milk #errands !2025-09-05
` + "```" + `

1. **Leading list markers** (` + "`" + `-` + "`" + `, ` + "`" + `*` + "`" + `, ` + "`" + `+` + "`" + `) are stripped.
2. **Tags** are written inline as ` + "`" + `#tag` + "`" + ` tokens. They are extracted from the
   content and stored on the note; the tokens themselves are removed from the
   stored body. Tags are lowercase, kebab-case (e.g. ` + "`" + `meeting-notes` + "`" + `).
3. **Dates** are written as ` + "`" + `!YYYY-MM-DD` + "`" + `. The first date token becomes the
   note's due date and is removed from the stored body.
4. **Encoding** is UTF-8. Content may use any language.

## Example

Input content:

` + "```" + `text
* call the dentist #health !2025-09-10
` + "```" + `

Stored note: body ` + "`" + `call the dentist` + "`" + `, tags ` + "`" + `[health]` + "`" + `, date ` + "`" + `2025-09-10` + "`" + `.
`
