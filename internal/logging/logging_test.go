package logging

import (
	"testing"

	"github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	g := gomega.NewWithT(t)

	logger, err := New("elevsim", "warn")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(logger.Core().Enabled(zapcore.InfoLevel)).To(gomega.BeFalse())
	g.Expect(logger.Core().Enabled(zapcore.WarnLevel)).To(gomega.BeTrue())

	_, err = New("elevsim", "loud")
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("loud")))

	g.Expect(NewDevelopment("dev").Core().Enabled(zapcore.DebugLevel)).To(gomega.BeTrue())
}

func TestObservedTestLogger(t *testing.T) {
	g := gomega.NewWithT(t)
	logger, logs := NewObservedTestLogger(t)

	logger.Warn("target outside travel", zap.Float64("height", 1.4))
	logger.Debug("mode change")

	g.Expect(logs.Len()).To(gomega.Equal(2))
	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	g.Expect(warns).To(gomega.HaveLen(1))
	g.Expect(warns[0].ContextMap()).To(gomega.HaveKeyWithValue("height", 1.4))
}
