// Package driver runs one HemeLB submission end to end: upload the inputs,
// register the job spec, get a pool, submit and wait for the outputs.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/squarefactory/polcloud-submit/hemelb"
	"github.com/squarefactory/polcloud-submit/polcloud"
	"github.com/squarefactory/polcloud-submit/poll"
)

type Options struct {
	// XMLFile is the HemeLB configuration. Unused when SpecID is set.
	XMLFile string
	// SpecID reuses an existing job spec and its input bundle.
	SpecID string
	// PoolID reuses an existing pool instead of provisioning one.
	PoolID string
	Nodes  int
	Token  string
	// DeletePool tears the pool down once the job is complete.
	DeletePool bool
	// UploadOnly stops after the input bundle is uploaded.
	UploadOnly bool
	// Template is the path of the JSON job template.
	Template  string
	WallClock string
	Polling   poll.Options
}

type Driver struct {
	client *polcloud.Client
	out    io.Writer
}

// New returns a driver printing its progress to out.
func New(client *polcloud.Client, out io.Writer) *Driver {
	return &Driver{client: client, out: out}
}

// Run executes the whole submission. The first failing step aborts it.
func (d *Driver) Run(ctx context.Context, opts *Options) error {
	job := d.client.NewJob()
	job.SetUser(opts.Token)

	if opts.SpecID != "" {
		job.Spec = opts.SpecID
		spec, err := job.GetJobSpec(ctx)
		if err != nil {
			return err
		}
		if job.Inputs, err = spec.Inputs(); err != nil {
			return fmt.Errorf("job spec %s: %w", opts.SpecID, err)
		}
	} else {
		if opts.XMLFile == "" {
			return errors.New("an XML file is required unless a job spec is given")
		}
		gmyFile, err := hemelb.GeometryFile(opts.XMLFile)
		if err != nil {
			return err
		}

		if err := d.uploadInputs(ctx, job, opts.XMLFile, gmyFile); err != nil {
			return err
		}
		if opts.UploadOnly {
			return nil
		}

		if err := d.createSpec(ctx, job, opts.Template, hemelb.Vars{
			XMLFile: opts.XMLFile,
			GmyFile: gmyFile,
		}); err != nil {
			return err
		}
	}

	if opts.PoolID != "" {
		job.SetPool(opts.PoolID)
	} else if err := job.CreatePool(ctx, opts.Nodes); err != nil {
		return err
	}
	info, err := job.Pool.GetInfo(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "Using pool: %s\n", compact(info))

	fmt.Fprintln(d.out, "Waiting for pool...")
	if err := poll.Until(ctx, opts.Polling, job.Pool.IsReady); err != nil {
		return fmt.Errorf("waiting for pool %s: %w", job.Pool.ID, err)
	}

	fmt.Fprintln(d.out, "Pool is ready: submitting job...")
	jobID, err := job.Submit(ctx, &polcloud.SubmitRequest{
		Size:      opts.Nodes,
		WallClock: opts.WallClock,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "Submitted job: %s\n", jobID)

	fmt.Fprintln(d.out, "Waiting for job...")
	if err := poll.Until(ctx, opts.Polling, job.IsComplete); err != nil {
		return fmt.Errorf("waiting for job %s: %w", jobID, err)
	}
	fmt.Fprintln(d.out, "Job is complete")

	outputs, err := job.ListOutputs(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(d.out, indent(outputs))

	if opts.DeletePool {
		if err := job.Pool.Delete(ctx); err != nil {
			return err
		}
		fmt.Fprintln(d.out, "Deleted pool")
		return nil
	}
	info, err = job.Pool.GetInfo(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "Pool is running: %s\n", compact(info))
	return nil
}

// uploadInputs creates an empty bundle and streams each file into it, so
// every file gets its own progress line.
func (d *Driver) uploadInputs(ctx context.Context, job *polcloud.Job, files ...string) error {
	if err := job.CreateInput(ctx); err != nil {
		return err
	}
	fmt.Fprintf(d.out, "Created input: %s\n", job.Inputs)

	for _, file := range files {
		fmt.Fprintf(d.out, "\nUploading %s\n", file)
		progress, err := NewProgressPrinter(d.out, file)
		if err != nil {
			return err
		}
		if err := job.UpdateInput(ctx, file, progress); err != nil {
			return err
		}
	}
	fmt.Fprintln(d.out, "\nInput upload complete.")

	info, err := job.GetInputInfo(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(d.out, indent(info))
	return nil
}

func (d *Driver) createSpec(ctx context.Context, job *polcloud.Job, template string, vars hemelb.Vars) error {
	tmpl, err := hemelb.LoadTemplate(template)
	if err != nil {
		return err
	}
	spec, err := hemelb.BuildSpec(tmpl, job.Inputs, vars)
	if err != nil {
		return err
	}
	fmt.Fprintln(d.out, indent(spec))

	if err := job.CreateJobSpec(ctx, spec); err != nil {
		return err
	}
	fmt.Fprintf(d.out, "Created job spec: %s\n", job.Spec)
	return nil
}

func indent(v any) string {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		log.Printf("failed to format %T: %s", v, err)
		return fmt.Sprint(v)
	}
	return string(b)
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
