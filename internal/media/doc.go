// Package media wraps the ffmpeg and ffprobe executables for the clip
// surgery the pipeline needs: sub-clip extraction, freeze-frame extension,
// bounded retiming, audio padding, silence generation, overlay muxing, and
// final concatenation.
//
// Every operation shells out once and treats a non-zero exit as an external
// tool failure; no media decoding happens in-process.
package media
