// Package importer runs the batch import pipeline. An Orchestrator turns
// free-form question bank text into persisted questions: it chunks the text,
// sends the chunks through the request scheduler a batch at a time, parses
// and deduplicates the generated candidates, and records progress on an
// ImportTask that clients poll until it is terminal.
package importer
