package squashfs

// LZO (lzo1x) is deliberately not registered: no LZO decoder exists in this
// module's dependency stack, and there is no actively maintained Go LZO
// package to adopt. Compression.decompress surfaces ErrCompressionUnsupported
// for LZO-compressed archives instead of silently corrupting data. The
// compression id is still named by String() so callers can at least
// identify and report the condition.
