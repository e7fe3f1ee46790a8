package colorcycle

import (
	"fmt"
	"hash/crc32"
)

func checksum(data []byte) string {
	h := crc32.NewIEEE()
	h.Write(data)
	return fmt.Sprintf("%.*X", crc32.Size<<1, h.Sum(nil))
}
