package mapping

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// joinParseErrors folds several parse failures into one error that still
// satisfies errors.Is for each of them.
func joinParseErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	merr := &multierror.Error{
		ErrorFormat: func(es []error) string {
			lines := make([]string, len(es))
			for i, err := range es {
				lines[i] = "  - " + err.Error()
			}
			return fmt.Sprintf("%d secret mappings are invalid:\n%s", len(es), strings.Join(lines, "\n"))
		},
	}
	return multierror.Append(merr, errs...)
}
