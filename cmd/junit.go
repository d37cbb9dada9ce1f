// -- cmd/junit.go --
package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
)

// writeJUnit renders reports as a JUnit testsuite: one testcase per
// document, with the failing step as the failure message.
func writeJUnit(path, suite string, reports []RunReport) error {
	doc := buildJUnit(suite, reports)
	if err := doc.WriteToFile(path); err != nil {
		return fmt.Errorf("failed to write junit report: %w", err)
	}
	return nil
}

func buildJUnit(suite string, reports []RunReport) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	ts := doc.CreateElement("testsuite")
	ts.CreateAttr("name", suite)
	ts.CreateAttr("tests", strconv.Itoa(len(reports)))

	var failures int
	var total time.Duration
	for _, r := range reports {
		total += r.Duration
		tc := ts.CreateElement("testcase")
		tc.CreateAttr("classname", suite)
		tc.CreateAttr("name", r.Document)
		tc.CreateAttr("time", seconds(r.Duration))
		if r.Passed {
			continue
		}
		failures++
		f := tc.CreateElement("failure")
		f.CreateAttr("message", r.Error)
		for _, st := range r.Steps {
			if st.Error != "" {
				f.SetText(fmt.Sprintf("step %d %s on %s: %s", st.Index, st.Action, st.Locator, st.Error))
			}
		}
	}
	ts.CreateAttr("failures", strconv.Itoa(failures))
	ts.CreateAttr("time", seconds(total))

	doc.Indent(2)
	return doc
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
