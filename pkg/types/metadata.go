package types

// FileMetadata describes a firmware image about to be sent
type FileMetadata struct {
	Name string // Base name, as shown to the operator
	Path string // Path as given on the command line or prompt
	Size int64  // Size in bytes at the time the file was opened
}

// ProgressUpdate reports cumulative transfer progress for one file
type ProgressUpdate struct {
	BytesSent  int64 // Cumulative bytes handed to the serial port
	TotalBytes int64
	Chunk      int // 1-based index of the chunk just written
}
