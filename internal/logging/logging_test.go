package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithComponentTagsComponentName(t *testing.T) {
	var buf bytes.Buffer
	mu.Lock()
	infoOut = &buf
	errorOut = &bytes.Buffer{}
	baseLevel = zerolog.InfoLevel
	mu.Unlock()

	log := WithComponent("widget")
	log.Info().Msg("hello")

	if !strings.Contains(buf.String(), `"component":"widget"`) {
		t.Fatalf("expected component field in output, got %s", buf.String())
	}
}

func TestErrorLevelWriterOnlyForwardsWarnAndAbove(t *testing.T) {
	var infoBuf, errBuf bytes.Buffer
	mu.Lock()
	infoOut = &infoBuf
	errorOut = &errBuf
	baseLevel = zerolog.DebugLevel
	mu.Unlock()

	log := WithComponent("widget")
	log.Info().Msg("just info")
	log.Warn().Msg("careful")

	if strings.Contains(errBuf.String(), "just info") {
		t.Fatal("info-level message should not reach the error sink")
	}
	if !strings.Contains(errBuf.String(), "careful") {
		t.Fatal("warn-level message should reach the error sink")
	}
	if !strings.Contains(infoBuf.String(), "just info") || !strings.Contains(infoBuf.String(), "careful") {
		t.Fatal("both messages should reach the info sink")
	}
}
