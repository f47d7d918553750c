package mem

import (
	"reflect"
	"unsafe"
)

// Memset sets size bytes at addr to value. It overlays a byte slice on top
// of the raw address and uses log2(size) copy calls (doubling the filled
// range each time) instead of a byte-at-a-time loop, which matters here
// since page-sized fills are common and addresses are always aligned.
func Memset(addr uintptr, value byte, size Size) {
	if size == 0 {
		return
	}

	target := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: addr,
	}))

	target[0] = value
	for index := Size(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}

// Memcpy copies size bytes from src to dst. The two ranges must not
// overlap; used to copy ELF segment contents from a loaded image into a
// freshly mapped process page, never to shift data within one buffer.
func Memcpy(dst, src uintptr, size Size) {
	if size == 0 {
		return
	}

	dstSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: dst,
	}))
	srcSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: src,
	}))

	copy(dstSlice, srcSlice)
}
