package fastclose

// comptimeDeferClose is true on platforms where closing a file handle can be
// slow enough to be worth moving off the calling goroutine.
//
// CloseHandle on Windows waits for file system filter drivers (Defender,
// indexers, sync clients) to finish with the file.
const comptimeDeferClose = true
