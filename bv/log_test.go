package bv

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/janelia-flyem/go/gocheck"
)

func (s *CoreSuite) TestLogFile(c *C) {
	filename := filepath.Join(c.MkDir(), "bioview.log")
	config := LogConfig{Logfile: filename, MaxSize: 1}
	config.SetLogger()
	defer Shutdown()

	prior := LogMode()
	defer SetLogMode(prior)
	SetLogMode(WarningMode)
	Infof("hidden info\n")
	Warningf("shown warning %d\n", 7)
	NewTimeLog().Errorf("timed error")
	Shutdown()

	data, err := os.ReadFile(filename)
	c.Assert(err, IsNil)
	text := string(data)
	c.Assert(strings.Contains(text, "hidden info"), Equals, false)
	c.Assert(strings.Contains(text, " WARNING shown warning 7"), Equals, true)
	c.Assert(strings.Contains(text, "   ERROR timed error: "), Equals, true)
}
