// Package partial implements incremental, type-erased value construction.
//
// A Builder is a stack of construction frames over raw memory described by
// shapes. Format readers drive it with descend/assign/ascend calls that
// mirror their input:
//
//	b, _ := partial.New[Config](reg)
//	b.BeginField("Host")
//	b.Set("localhost")
//	b.Pop()
//	b.BeginField("Port")
//	b.Set(8080)
//	b.Pop()
//	cfg, err := partial.Build[Config](b)
//
// Each frame keeps an initialization bitset: one bit per field for records
// and selected variant cases, one per index for fixed arrays, a single leaf
// bit for everything else. Finalize succeeds only when the remaining
// top-level frame shows full coverage. Abandoning the builder at any point
// (Close, or an error path) destroys exactly the sub-values whose bits are
// set — never more, never twice.
//
// Frames for struct fields and array elements alias the parent's memory, so
// completion costs nothing. Sequence elements, map keys and values, optional
// payloads and smart-pointer interiors are built in scratch memory and
// spliced into the parent by the shape's own operation (push, insert,
// init-present, wrap) when popped. A spliced frame is marked moved and never
// dropped again.
//
// Builders are single-threaded: one goroutine owns a Builder from Alloc to
// Finalize or Close. The shape Registry they read from is safe to share.
package partial
