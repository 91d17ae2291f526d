package extraction

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PrepareImage", func() {
	var (
		filename    string
		data        []byte
		contentType string
		img         *Image
		err         error
	)

	BeforeEach(func() {
		filename = "invoice.png"
		data = pngFixture()
		contentType = "image/png"
	})

	JustBeforeEach(func() {
		img, err = PrepareImage(filename, data, contentType)
	})

	When("the upload is a PNG", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should pass the bytes through untouched", func() {
			Expect(img.Data).To(Equal(data))
		})

		It("should report the decoded format", func() {
			Expect(img.ContentType).To(Equal("image/png"))
		})

		It("should keep the filename", func() {
			Expect(img.Filename).To(Equal("invoice.png"))
		})
	})

	When("the upload is a JPEG without a declared content type", func() {
		BeforeEach(func() {
			filename = "scan.JPG"
			data = jpegFixture()
			contentType = ""
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should report image/jpeg", func() {
			Expect(img.ContentType).To(Equal("image/jpeg"))
		})

		It("should pass the bytes through untouched", func() {
			Expect(img.Data).To(Equal(data))
		})
	})

	When("the upload is a corrupted file claiming to be a JPEG", func() {
		BeforeEach(func() {
			filename = "broken.jpg"
			data = []byte("definitely not a jpeg")
			contentType = "image/jpeg"
		})

		It("should return an UploadError", func() {
			var uploadErr *UploadError
			Expect(errors.As(err, &uploadErr)).To(BeTrue())
			Expect(uploadErr.Filename).To(Equal("broken.jpg"))
		})

		It("should suggest converting PDFs", func() {
			Expect(err.Error()).To(HavePrefix("Error opening the file: "))
			Expect(err.Error()).To(ContainSubstring("If it's a PDF, please convert it to an image first."))
		})

		It("should not return an image", func() {
			Expect(img).To(BeNil())
		})
	})

	When("the upload is a PDF", func() {
		BeforeEach(func() {
			filename = "invoice.pdf"
			data = []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")
			contentType = "application/pdf"
		})

		It("should return an UploadError", func() {
			var uploadErr *UploadError
			Expect(errors.As(err, &uploadErr)).To(BeTrue())
		})

		It("should suggest converting it to an image", func() {
			Expect(err.Error()).To(ContainSubstring("please convert it to an image first"))
		})
	})

	When("a PDF is uploaded with an image content type", func() {
		BeforeEach(func() {
			data = []byte("%PDF-1.4 fake")
			contentType = "image/png"
		})

		It("should return an UploadError", func() {
			var uploadErr *UploadError
			Expect(errors.As(err, &uploadErr)).To(BeTrue())
		})
	})

	When("the upload is empty", func() {
		BeforeEach(func() {
			data = []byte{}
		})

		It("should return an UploadError", func() {
			var uploadErr *UploadError
			Expect(errors.As(err, &uploadErr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("the file is empty"))
		})
	})

	When("the upload claims to be HEIC but cannot be decoded", func() {
		BeforeEach(func() {
			filename = "IMG_0001.HEIC"
			data = append([]byte{0, 0, 0, 24}, []byte("ftypheic garbage payload")...)
			contentType = "image/heic"
		})

		It("should return an UploadError", func() {
			var uploadErr *UploadError
			Expect(errors.As(err, &uploadErr)).To(BeTrue())
		})
	})
})

var _ = Describe("DetectContentType", func() {
	DescribeTable("resolves the content type",
		func(filename string, data []byte, declared string, expected string) {
			Expect(DetectContentType(filename, data, declared)).To(Equal(expected))
		},
		Entry("declared type wins", "a.png", nil, "image/jpeg", "image/jpeg"),
		Entry("declared type is normalized", "a.png", nil, " Image/PNG; charset=binary ", "image/png"),
		Entry("octet-stream falls back to the extension", "a.jpeg", nil, "application/octet-stream", "image/jpeg"),
		Entry("pdf extension", "a.PDF", nil, "", "application/pdf"),
		Entry("heic extension", "a.heic", nil, "", "image/heic"),
		Entry("heif extension", "a.heif", nil, "", "image/heif"),
		Entry("gif extension", "a.gif", nil, "", "image/gif"),
		Entry("unknown extension is sniffed", "a.bin", []byte("%PDF-1.4"), "", "application/pdf"),
		Entry("nothing to go on", "a", nil, "", "application/octet-stream"),
	)
})

var _ = Describe("isHEICFormat", func() {
	It("recognizes HEIC brands", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic"))).To(BeTrue())
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypmif1"))).To(BeTrue())
	})

	It("rejects other data", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypisom"))).To(BeFalse())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
	})
})
