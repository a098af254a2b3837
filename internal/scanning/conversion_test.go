package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

var _ = Describe("detectFormat", func() {
	DescribeTable("detecting upload formats",
		func(data []byte, mimeType string, expected sourceFormat) {
			Expect(detectFormat(data, mimeType)).To(Equal(expected))
		},
		Entry("png", []byte{}, "image/png", formatPNG),
		Entry("pdf by mime", []byte{}, "application/pdf", formatPDF),
		Entry("pdf by magic", []byte("%PDF-1.7"), "application/octet-stream", formatPDF),
		Entry("heic by mime", []byte{}, " Image/HEIC ", formatHEIC),
		Entry("heic by magic", []byte("\x00\x00\x00\x18ftypheic"), "image/jpeg", formatHEIC),
		Entry("jpeg", []byte{0xff, 0xd8}, "image/jpeg", formatOther),
	)
})

var _ = Describe("prepareImageData", func() {
	var (
		input       []byte
		contentType string
		output      []byte
		err         error
	)

	JustBeforeEach(func() {
		output, err = prepareImageData(input, contentType)
	})

	When("the upload is already PNG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage())).To(Succeed())
			input = buf.Bytes()
			contentType = "image/png"
		})

		It("should return it unchanged", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(output).To(Equal(input))
		})
	})

	When("the upload is JPEG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
			input = buf.Bytes()
			contentType = "image/jpeg"
		})

		It("should convert it to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			_, format, decodeErr := image.Decode(bytes.NewReader(output))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("the upload is not an image", func() {
		BeforeEach(func() {
			input = []byte("plain text")
			contentType = "text/plain"
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
		})
	})
})
