package mcpserver

// OutcomeGuide explains verification outcomes to LLM consumers so they can
// act on verify_file and list_history results.
const OutcomeGuide = `# shatag Verification Outcomes

Every regular file may carry two tags stored beside its content:
` + "`" + `shatag.sha256` + "`" + ` (lowercase hex SHA-256 of the content) and
` + "`" + `shatag.ts` + "`" + ` (the modification time at hashing, as
` + "`" + `<seconds>.<nine-digit nanoseconds>` + "`" + `).

Verifying a file compares the stored tags with a fresh hash and mtime.

| outcome         | exit | meaning                                                          |
|-----------------|------|------------------------------------------------------------------|
| ` + "`" + `ok` + "`" + `            | 0    | mtime and checksum both match the tags                           |
| ` + "`" + `outdated` + "`" + `      | 0    | file changed legitimately or was never tagged; tags rewritten    |
| ` + "`" + `corrupt` + "`" + `       | 5    | mtime unchanged but content differs; silent corruption suspected |
| ` + "`" + `write_failure` + "`" + ` | 4    | tags needed rewriting but the write failed                       |
| ` + "`" + `error` + "`" + `         | 1    | the file could not be read or its tags were malformed            |

## Rules

1. A corrupt file is never re-tagged. Repeat verifications keep reporting it
   until the content is restored or the tags are removed.
2. Paths are relative to the served root and use forward slashes.
3. ` + "`" + `list_corrupt` + "`" + ` reports files whose latest verification was corrupt;
   ` + "`" + `list_history` + "`" + ` reports every recorded verification, newest first.
4. Restore corrupt files from a backup, then verify again to confirm ` + "`" + `ok` + "`" + `.
`
