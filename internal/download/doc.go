// Package download caches verse clips for offline playback.
//
// A Manager runs each Job on its own goroutine, one verse at a time. The Job
// returned by Start is the only handle to it: Pause, Resume and Cancel are
// cooperative and take effect between items, never in the middle of a
// fetch. A failed item is skipped and still counts as done, so progress only
// moves forward; the Summary at the end tells full and partial success
// apart.
package download
