// Package cache provides the durable clip store used for offline playback.
//
// Clips are kept in a Badger database under deterministic keys built from
// the reciter, bitrate, chapter and verse (see Key). Each value carries a
// small header with the write time and a compression flag; payloads larger
// than 1KB are zstd compressed when that makes them smaller. An optional
// in-memory LRU sits in front of the database for recently played clips.
//
// Every failure is returned as an ayah CACHE_IO error. Callers treat such
// errors as "not cached" and carry on.
package cache
