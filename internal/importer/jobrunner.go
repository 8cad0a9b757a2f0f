package importer

import (
	"context"
	"fmt"
	"os"

	"github.com/dlcdb/dlcdb/pkg/jobs"
)

// RunImport executes the import a claimed job describes: the payload file is
// opened and imported in write mode. Satisfies jobs.Runner.
func (i *Importer) RunImport(ctx context.Context, job *jobs.ImportJob) (int, int, error) {
	f, err := os.Open(job.PayloadPath)
	if err != nil {
		return 0, 0, fmt.Errorf("opening job payload: %w", err)
	}
	defer f.Close()

	result, err := i.Import(ctx, f, Options{
		Format:   Format(job.Format),
		Tenant:   job.Tenant,
		Username: job.RequestedBy,
		Write:    true,
	})
	if err != nil {
		return 0, 0, err
	}
	return result.DevicesCreated, result.RecordsCreated, nil
}
