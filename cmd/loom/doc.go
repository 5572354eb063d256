// Command loom dubs an English video into another language: it translates
// the caption file, synthesizes speech with a cloned voice, reconciles each
// segment's duration against the original cue, and assembles the final
// video.
package main
