package mqtt

import "github.com/rs/zerolog"

// bufferedMsg is a serialized message held for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages published while the
// broker was unreachable. When full the oldest message is overwritten.
// Not safe for concurrent use.
type ringBuffer struct {
	log     zerolog.Logger
	buf     []bufferedMsg
	head    int // next write position
	count   int
	dropped uint64 // total overwritten, never reset
	warned  bool   // overflow already logged since the last drain
}

func newRingBuffer(capacity int, log zerolog.Logger) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{log: log, buf: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	n := len(r.buf)
	r.buf[r.head] = msg
	r.head = (r.head + 1) % n
	if r.count < n {
		r.count++
		return
	}
	r.dropped++
	if !r.warned {
		r.log.Warn().Int("capacity", n).Msg("offline buffer full, dropping oldest")
		r.warned = true
	}
}

// drainAll returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	n := len(r.buf)
	out := make([]bufferedMsg, r.count)
	start := (r.head - r.count + n) % n
	for i := range out {
		out[i] = r.buf[(start+i)%n]
		r.buf[(start+i)%n] = bufferedMsg{}
	}
	r.count = 0
	r.head = 0
	r.warned = false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
