package config

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"
)

func TestLoggingConfig_PrepareFileLog(t *testing.T) {
	dir := t.TempDir()
	conf := LoggingConfig{
		ConsoleLogger: LoggerConfig{Level: "none"},
		FileLogger:    LoggerConfig{Level: "normal", Destination: filepath.Join(dir, "run.log"), Mode: "overwrite"},
	}
	t.Cleanup(func() { debug.SetCrashOutput(nil, debug.CrashOptions{}) })

	log, err := conf.Prepare(nil)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	log.Debug("hidden message")
	log.Info("visible message")
	_ = log.Sync()

	data, err := os.ReadFile(conf.FileLogger.Destination)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "visible message") || strings.Contains(string(data), "hidden message") {
		t.Errorf("log content = %q", data)
	}
	if _, err := os.Stat(conf.PanicLogName()); err != nil {
		t.Errorf("panic log was not created: %v", err)
	}
}

func TestLoggingConfig_ReportForcesDebug(t *testing.T) {
	dir := t.TempDir()
	conf := LoggingConfig{
		ConsoleLogger: LoggerConfig{Level: "none"},
		FileLogger:    LoggerConfig{Level: "none", Destination: filepath.Join(dir, "run.log"), Mode: "append"},
	}
	t.Cleanup(func() { debug.SetCrashOutput(nil, debug.CrashOptions{}) })

	rpt, err := (&ReporterConfig{Destination: filepath.Join(dir, "report.zip")}).Prepare()
	if err != nil {
		t.Fatal(err)
	}
	defer rpt.Close()

	log, err := conf.Prepare(rpt)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	log.Debug("debug message")
	_ = log.Sync()

	data, err := os.ReadFile(conf.FileLogger.Destination)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "debug message") {
		t.Errorf("log content = %q, want debug entry", data)
	}
	if _, ok := rpt.entries["final.log"]; !ok {
		t.Error("log file was not stored in report")
	}
}

func TestLoggingConfig_KeepStdoutClean(t *testing.T) {
	conf := LoggingConfig{ConsoleLogger: LoggerConfig{Level: "normal"}, FileLogger: LoggerConfig{Level: "none"}}
	conf.KeepStdoutClean()
	if !conf.stdoutBusy {
		t.Fatal("stdout is not marked busy")
	}
	if _, err := conf.Prepare(nil); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
}

func TestFileLevel(t *testing.T) {
	for _, level := range []string{"debug", "normal"} {
		if _, ok := fileLevel(level); !ok {
			t.Errorf("fileLevel(%q) is disabled", level)
		}
	}
	if _, ok := fileLevel("none"); ok {
		t.Error("fileLevel(none) is enabled")
	}
}
