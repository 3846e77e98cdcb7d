package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mintflip/internal/catalog"
	"mintflip/internal/mint"
)

func newMintCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Publish tracks as NFTs and manage mint jobs",
	}

	var (
		form      catalog.MintForm
		audioPath string
		imagePath string
	)
	submit := &cobra.Command{
		Use:   "submit",
		Short: "Upload a track and mint it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			audio, closeAudio, err := openUpload(audioPath)
			if err != nil {
				return err
			}
			defer closeAudio()

			image, closeImage, err := openOptionalUpload(imagePath)
			if err != nil {
				return err
			}
			defer closeImage()

			job, err := a.catalog.SubmitMint(cmd.Context(), form, *audio, image)
			if job != nil {
				printJob(cmd.OutOrStdout(), job)
			}
			return err
		},
	}
	submit.Flags().StringVar(&form.Name, "name", "", "track title")
	submit.Flags().StringVar(&form.Artist, "artist", "", "artist name")
	submit.Flags().StringVar(&form.Description, "description", "", "track description")
	submit.Flags().StringVar(&form.Genre, "genre", "", "genre")
	submit.Flags().StringVar(&form.Price, "price", "", "list price in ETH")
	submit.Flags().StringVar(&form.License, "license", "standard", "standard, commercial, exclusive or premium")
	submit.Flags().StringVar(&audioPath, "audio", "", "path to the audio file")
	submit.Flags().StringVar(&imagePath, "image", "", "path to the cover image")
	_ = submit.MarkFlagRequired("name")
	_ = submit.MarkFlagRequired("audio")

	list := &cobra.Command{
		Use:   "list",
		Short: "List your mint jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := a.catalog.MintJobs(cmd.Context())
			if err != nil {
				return err
			}
			return printJobs(cmd.OutOrStdout(), jobs)
		},
	}

	status := &cobra.Command{
		Use:   "status JOB",
		Short: "Show one mint job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			job, err := a.catalog.MintJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}

	var resumeAudio, resumeImage string
	resume := &cobra.Command{
		Use:   "resume JOB",
		Short: "Retry a failed mint job from its last checkpoint",
		Long: "Uploads that already finished are skipped. Pass --audio or --image\n" +
			"only when the job failed before those files were pinned.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			audio, closeAudio, err := openOptionalUpload(resumeAudio)
			if err != nil {
				return err
			}
			defer closeAudio()
			image, closeImage, err := openOptionalUpload(resumeImage)
			if err != nil {
				return err
			}
			defer closeImage()

			job, err := a.catalog.ResumeMint(cmd.Context(), id, audio, image)
			if job != nil {
				printJob(cmd.OutOrStdout(), job)
			}
			return err
		},
	}
	resume.Flags().StringVar(&resumeAudio, "audio", "", "path to the audio file")
	resume.Flags().StringVar(&resumeImage, "image", "", "path to the cover image")

	compensate := &cobra.Command{
		Use:   "compensate JOB",
		Short: "Unpin the uploads of a failed job that never minted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			job, err := a.catalog.CompensateMint(cmd.Context(), id)
			if job != nil {
				printJob(cmd.OutOrStdout(), job)
			}
			return err
		},
	}

	cmd.AddCommand(submit, list, status, resume, compensate)
	return cmd
}

func parseJobID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}

func openUpload(path string) (*catalog.Upload, func(), error) {
	if path == "" {
		return nil, func() {}, errors.New("file path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, func() {}, err
	}
	return &catalog.Upload{Name: filepath.Base(path), Content: f}, func() { _ = f.Close() }, nil
}

func openOptionalUpload(path string) (*catalog.Upload, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	return openUpload(path)
}

func printJob(out io.Writer, job *mint.Job) {
	fmt.Fprintf(out, "Job %s: %s (%d%%)\n", job.ID, job.Stage, job.Checkpoint.Percent())
	fmt.Fprintf(out, "  track:  %s by %s\n", job.Name, job.Artist)
	if job.TokenURI != "" {
		fmt.Fprintf(out, "  uri:    %s\n", job.TokenURI)
	}
	if job.TokenID != nil {
		fmt.Fprintf(out, "  token:  %d\n", *job.TokenID)
	}
	if job.TxHash != "" {
		fmt.Fprintf(out, "  tx:     %s\n", job.TxHash)
	}
	if job.Error != "" {
		fmt.Fprintf(out, "  error:  %s (checkpoint %s)\n", job.Error, job.Checkpoint)
	}
}

func printJobs(out io.Writer, jobs []*mint.Job) error {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No mint jobs.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTAGE\tNAME\tTOKEN\tUPDATED")
	for _, j := range jobs {
		token := "-"
		if j.TokenID != nil {
			token = fmt.Sprint(*j.TokenID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Stage, j.Name, token, j.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
