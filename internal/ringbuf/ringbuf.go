// package ringbuf provides a fixed capacity FIFO which overwrites its oldest element when full.
package ringbuf

type RingBuf[T any] struct {
	buf        []T
	head, tail int
}

func New[T any](n int) RingBuf[T] {
	if n <= 0 {
		panic(n)
	}
	return RingBuf[T]{buf: make([]T, n)}
}

func (rb *RingBuf[T]) MaxLen() int {
	return len(rb.buf)
}

// PushBack appends val, evicting the front element if the buffer is full.
func (rb *RingBuf[T]) PushBack(val T) {
	if rb.Len() == len(rb.buf) {
		rb.head++
	}
	rb.buf[rb.tail%len(rb.buf)] = val
	rb.tail++
}

func (rb *RingBuf[T]) PopFront() T {
	val := rb.At(0)
	rb.head++
	return val
}

func (rb *RingBuf[T]) At(i int) T {
	if i < 0 || i >= rb.Len() {
		panic(i)
	}
	return rb.buf[(rb.head+i)%len(rb.buf)]
}

func (rb *RingBuf[T]) Len() int {
	return rb.tail - rb.head
}

func (rb *RingBuf[T]) IsFull() bool {
	return rb.Len() == len(rb.buf)
}

// AppendTo appends the contents, oldest first, to out.
func (rb *RingBuf[T]) AppendTo(out []T) []T {
	for i := 0; i < rb.Len(); i++ {
		out = append(out, rb.At(i))
	}
	return out
}
