package nl2sql

import (
	"strings"
)

// RefusalText is the exact reply the policy asks for when a question requests
// anything other than a read query.
const RefusalText = "You can only use SELECT statements. DDL/DML operations are not allowed."

const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 500
)

const instructionPolicy = `You are a PostgreSQL expert. Translate the user's question into a single SQL query against the database described below.

Database schema (JSON):
%SCHEMA%

Rules:
1. Produce ONLY SELECT statements. Never produce CREATE, DROP, ALTER, INSERT, UPDATE, DELETE, TRUNCATE, GRANT, REVOKE or any other DDL, DML or privilege statement.
2. If the user asks for anything other than a SELECT statement, reply with exactly: "` + RefusalText + `"
3. If the user asks about the database schema, its tables, columns or data types, do not write SQL. Answer directly from the schema above, as a Markdown table with the columns Table, Column, Data Type when asked to show the schema.
4. When a query joins two or more tables, give every selected column a meaningful alias (for example AS city_name, AS country_name).
5. Output only the query text, or the refusal or schema answer. No explanation, no commentary, no code fences.
6. Use PostgreSQL syntax and only the tables and columns listed above.
7. Do not include comments in the SQL.

Example forbidden question:
User: Create a new table for cities
Response: ` + RefusalText + `

Example schema question:
User: What tables are in the database?
Response: The database contains the following tables: city, country, countrylanguage.

Example join question:
User: What are the 10 most crowded cities? Include city and country names
Response:
SELECT c.name AS city_name, co.name AS country_name
FROM city c
JOIN country co ON c.countrycode = co.code
ORDER BY c.population DESC
LIMIT 10`

type PromptOptions struct {
	Temperature float64
	MaxTokens   int
}

// BuildPrompt pairs the fixed instruction policy and schema context with the
// user's question. It performs no I/O.
func BuildPrompt(question, schemaContext string, opts PromptOptions) Prompt {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if strings.TrimSpace(schemaContext) == "" {
		schemaContext = "(no schema available)"
	}
	return Prompt{
		System:      strings.Replace(instructionPolicy, "%SCHEMA%", schemaContext, 1),
		User:        question,
		Temperature: opts.Temperature,
		MaxTokens:   maxTokens,
	}
}

// IsRefusal reports whether generated text is the policy's refusal reply.
func IsRefusal(text string) bool {
	normalized := strings.Trim(strings.TrimSpace(text), `"'`)
	return strings.EqualFold(normalized, RefusalText)
}

// CleanOutput trims whitespace and a surrounding code fence, with or without
// a language tag.
func CleanOutput(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		tag := strings.TrimSpace(trimmed[:newline])
		if isFenceTag(tag) {
			trimmed = trimmed[newline+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func isFenceTag(tag string) bool {
	if tag == "" {
		return true
	}
	if strings.ContainsAny(tag, " \t;(") {
		return false
	}
	switch strings.ToLower(tag) {
	case "select", "with":
		return false
	}
	return true
}
