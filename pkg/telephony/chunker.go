package telephony

// ChunkSize is the number of caller audio bytes forwarded to the agent per
// frame.
const ChunkSize = 3200

// Chunker accumulates caller audio and cuts it into fixed-size chunks. The
// remainder below the chunk size stays buffered.
type Chunker struct {
	size int
	buf  []byte
}

func NewChunker(size int) *Chunker {
	if size <= 0 {
		size = ChunkSize
	}
	return &Chunker{size: size, buf: make([]byte, 0, size*2)}
}

// Write appends audio and returns every complete chunk, oldest first. Returned
// chunks do not alias the internal buffer.
func (c *Chunker) Write(audio []byte) [][]byte {
	c.buf = append(c.buf, audio...)
	var out [][]byte
	for len(c.buf) >= c.size {
		chunk := make([]byte, c.size)
		copy(chunk, c.buf[:c.size])
		out = append(out, chunk)
		c.buf = append(c.buf[:0], c.buf[c.size:]...)
	}
	return out
}

func (c *Chunker) Buffered() int { return len(c.buf) }

// Flush returns the partial chunk, if any, and empties the buffer.
func (c *Chunker) Flush() []byte {
	if len(c.buf) == 0 {
		return nil
	}
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	c.buf = c.buf[:0]
	return out
}
