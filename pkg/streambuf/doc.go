// Package streambuf provides StreamBuffer, a fixed-size circular window over
// an unbounded byte stream addressed by absolute offsets.
//
// Writers place bytes at the stream offset they belong to; whatever falls
// outside the window is clipped. Readers always see the first bytes of the
// window, zero where nothing was written, and advance it explicitly with Move.
package streambuf
