package consume

import "github.com/valyala/bytebufferpool"

var bodyBuffers bytebufferpool.Pool

// accumulator collects body chunks in a pooled buffer.
type accumulator struct {
	buf *bytebufferpool.ByteBuffer
}

func newAccumulator() *accumulator {
	return &accumulator{buf: bodyBuffers.Get()}
}

func (a *accumulator) append(chunk []byte) {
	_, _ = a.buf.Write(chunk)
}

// detach hands the collected bytes to the caller and returns the buffer to
// the pool. An empty body yields an empty, non-nil slice.
func (a *accumulator) detach() []byte {
	data := a.buf.B
	a.buf.B = nil
	a.release()
	if data == nil {
		data = []byte{}
	}
	return data
}

func (a *accumulator) release() {
	if a.buf == nil {
		return
	}
	bodyBuffers.Put(a.buf)
	a.buf = nil
}
