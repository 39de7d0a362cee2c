package upcall

import "encoding/binary"

// nativeEndian is the host's byte order, used only for the legacy v0
// binary upcall whose uid_t encoding was never specified independent of
// the kernel's own native representation.
var nativeEndian = binary.NativeEndian
