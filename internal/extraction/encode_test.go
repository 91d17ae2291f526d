package extraction

import (
	"encoding/base64"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("EncodeImage", func() {
	DescribeTable("round-trips the exact bytes",
		func(data []byte) {
			decoded, err := base64.StdEncoding.DecodeString(EncodeImage(data))
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded).To(Equal(data))
		},
		Entry("a single byte", []byte{0xff}),
		Entry("text", []byte("invoice")),
		Entry("bytes needing padding", []byte{0x00, 0x01}),
		Entry("every byte value", func() []byte {
			all := make([]byte, 256)
			for i := range all {
				all[i] = byte(i)
			}
			return all
		}()),
	)

	It("round-trips random payloads of many sizes", func() {
		rng := rand.New(rand.NewSource(GinkgoRandomSeed()))
		for size := 1; size < 2048; size += 37 {
			data := make([]byte, size)
			rng.Read(data)
			decoded, err := base64.StdEncoding.DecodeString(EncodeImage(data))
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded).To(Equal(data))
		}
	})

	It("encodes empty input to the empty string", func() {
		Expect(EncodeImage(nil)).To(BeEmpty())
		Expect(EncodeImage([]byte{})).To(BeEmpty())
	})

	It("does not transform image data", func() {
		data := pngFixture()
		Expect(EncodeImage(data)).To(Equal(base64.StdEncoding.EncodeToString(data)))
	})
})

var _ = Describe("dataURL", func() {
	It("embeds the payload as a JPEG data URL", func() {
		Expect(dataURL("QUJD")).To(Equal("data:image/jpeg;base64,QUJD"))
	})
})
