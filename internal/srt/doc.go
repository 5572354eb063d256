// Package srt parses SubRip caption files into ordered cues.
//
// The parser is deliberately strict about timing lines and tolerant about
// everything else: cue numbering in the file is ignored and cues are
// reindexed sequentially, multi-line text is joined with single spaces, and
// blank cues are preserved so downstream stages can decide how to voice them.
package srt
