package queryreader

import (
	"bytes"
	"log/slog"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Logger", func() {
	var buf *bytes.Buffer
	BeforeEach(func() {
		buf = &bytes.Buffer{}
		SetLogger(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	})
	AfterEach(func() {
		SetLogger(nil)
		SetLogLevel(LogLevelWarn)
	})

	It("should drop messages below the library level", func() {
		SetLogLevel(LogLevelWarn)
		LogInfof("hidden %d", 1)
		Expect(buf.String()).To(BeEmpty())

		LogWarnf("shown %d", 2)
		Expect(buf.String()).To(ContainSubstring("shown 2"))
		Expect(buf.String()).To(ContainSubstring("component=queryreader"))
	})

	It("should parse level names", func() {
		Expect(ParseLogLevel("DEBUG")).To(Equal(LogLevelDebug))
		Expect(ParseLogLevel(" info ")).To(Equal(LogLevelInfo))
		Expect(ParseLogLevel("error")).To(Equal(LogLevelError))
		Expect(ParseLogLevel("verbose")).To(Equal(LogLevelWarn))
	})
})
