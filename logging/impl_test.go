package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestConsoleOutputFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("scenediff")
	logger.AddAppender(NewWriterAppender(&buf))

	logger.Infow("stripped planes")
	line, err := buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	parts := strings.Split(strings.TrimSuffix(line, "\n"), "\t")
	test.That(t, parts, test.ShouldHaveLength, 5)
	test.That(t, len(parts[0]), test.ShouldEqual, len(DefaultTimeFormatStr))
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "scenediff")
	test.That(t, parts[3], test.ShouldStartWith, "logging/impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "stripped planes")

	logger.Debugw("difference", "emitted", 12, "threshold", 0.01)
	line, err = buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	parts = strings.Split(strings.TrimSuffix(line, "\n"), "\t")
	test.That(t, parts, test.ShouldHaveLength, 6)
	fields := map[string]interface{}{}
	test.That(t, json.Unmarshal([]byte(parts[5]), &fields), test.ShouldBeNil)
	test.That(t, fields["emitted"], test.ShouldEqual, 12.0)
	test.That(t, fields["threshold"], test.ShouldEqual, 0.01)
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("levels")
	logger.AddAppender(NewWriterAppender(&buf))
	logger.SetLevel(WARN)

	logger.Debugw("hidden")
	logger.Infow("hidden")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Warnw("visible", "n", 1)
	test.That(t, buf.String(), test.ShouldContainSubstring, "visible")
	test.That(t, buf.String(), test.ShouldContainSubstring, `{"n":1}`)

	buf.Reset()
	logger.CDebugw(EnableDebugMode(context.Background(), ""), "forced by context")
	test.That(t, buf.String(), test.ShouldContainSubstring, "forced by context")

	level, err := LevelFromString("ERROR")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, ERROR)
	_, err = LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSubloggerAndObserver(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	sub := logger.Sublogger("pipeline").Sublogger("suppress")
	sub.Infow("plane removed", "inliers", 51000)

	entries := observed.FilterMessage("plane removed").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "pipeline.suppress")
	test.That(t, entries[0].ContextMap()["inliers"], test.ShouldEqual, int64(51000))
	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestUnpairedKey(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.Errorw("odd", "lonely")
	entries := observed.All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].ContextMap()["lonely"], test.ShouldNotBeNil)
}
