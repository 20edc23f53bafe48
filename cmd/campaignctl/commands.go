package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/pipeline"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/publish"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/textproc"
)

// brandFlags describe the brand a command works on.
type brandFlags struct {
	campaignID   string
	company      string
	product      string
	icp          string
	tone         string
	description  string
	templateType string
	contentTypes []string
}

func (f *brandFlags) registerCompany(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.company, "company", "", "Company name; selects the tenant collection")
	_ = cmd.MarkFlagRequired("company")
}

func (f *brandFlags) registerBrief(cmd *cobra.Command) {
	f.registerCompany(cmd)
	cmd.Flags().StringVar(&f.campaignID, "campaign-id", "", "Campaign id for progress events (default: random)")
	cmd.Flags().StringVar(&f.product, "product", "", "Product being promoted")
	cmd.Flags().StringVar(&f.icp, "icp", "", "Ideal customer profile")
	cmd.Flags().StringVar(&f.tone, "tone", "", "Brand tone of voice")
	cmd.Flags().StringVar(&f.description, "description", "", "Campaign description")
}

func (f *brandFlags) id() string {
	if f.campaignID != "" {
		return f.campaignID
	}
	return uuid.NewString()
}

func (f *brandFlags) pipelineInput() pipeline.CampaignInput {
	return pipeline.CampaignInput{
		CampaignID:  f.id(),
		Company:     f.company,
		Product:     f.product,
		ICP:         f.icp,
		Tone:        f.tone,
		Description: f.description,
	}
}

func (f *brandFlags) calendarRequest() calendar.Request {
	return calendar.Request{
		CampaignID:   f.id(),
		Company:      f.company,
		ICP:          f.icp,
		Tone:         f.tone,
		Description:  f.description,
		ContentTypes: f.contentTypes,
		TemplateType: f.templateType,
	}
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	f := &brandFlags{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the five-stage brand analysis and print the merged record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Analyzer.Run(cmd.Context(), f.pipelineInput())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	f.registerBrief(cmd)
	return cmd
}

func newCalendarCmd(opts *rootOptions) *cobra.Command {
	f := &brandFlags{}
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Generate a content calendar for a brand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			cal, err := a.Calendars.Generate(cmd.Context(), f.calendarRequest())
			if err != nil {
				return err
			}
			if n := cal.ErrorCount(); n > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d of %d days could not be generated\n", n, cal.TotalDays)
			}
			return printJSON(cmd.OutOrStdout(), cal)
		},
	}
	f.registerBrief(cmd)
	cmd.Flags().StringVar(&f.templateType, "template", "", "Template type (e.g. educational, problem_solution)")
	cmd.Flags().StringSliceVar(&f.contentTypes, "types", nil, "Content types to rotate (canonical_post, carousel, video_script)")
	return cmd
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	f := &brandFlags{}
	cmd := &cobra.Command{
		Use:   "ingest <posts.json>",
		Short: "Clean, chunk, embed and store scraped posts for a brand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			posts, err := readPosts(args[0])
			if err != nil {
				return err
			}
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Retrieval.IngestPosts(cmd.Context(), f.company, posts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	f.registerCompany(cmd)
	return cmd
}

func newPublishCmd(opts *rootOptions) *cobra.Command {
	f := &brandFlags{}
	var day int
	cmd := &cobra.Command{
		Use:   "publish <calendar.json>",
		Short: "Publish one calendar day to the configured Telegram chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if day < 1 {
				return fmt.Errorf("--day must be at least 1")
			}
			cal, err := readCalendar(args[0])
			if err != nil {
				return err
			}
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Publisher == nil {
				return publish.ErrNotConfigured
			}

			receipt, err := a.Publisher.Publish(cmd.Context(), publish.Request{
				CampaignID: f.id(),
				Tenant:     f.company,
				Calendar:   cal,
				Day:        day,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}
	f.registerCompany(cmd)
	cmd.Flags().IntVar(&day, "day", 1, "Calendar day to publish")
	cmd.Flags().StringVar(&f.campaignID, "campaign-id", "", "Campaign id recorded with the publish decision")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	f := &brandFlags{}
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show how many posts are stored for a brand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Retrieval.Stats(cmd.Context(), f.company)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	f.registerCompany(cmd)
	return cmd
}

func newForgetCmd(opts *rootOptions) *cobra.Command {
	f := &brandFlags{}
	cmd := &cobra.Command{
		Use:   "forget",
		Short: "Delete everything stored for a brand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Retrieval.DeleteTenant(cmd.Context(), f.company); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"company": f.company, "status": "deleted"})
		},
	}
	f.registerCompany(cmd)
	return cmd
}

// readPosts accepts a JSON array of posts or an object with a "posts" array.
func readPosts(path string) ([]textproc.Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var posts []textproc.Post
		if err := json.Unmarshal(data, &posts); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return posts, nil
	}
	var wrapped struct {
		Posts []textproc.Post `json:"posts"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if wrapped.Posts == nil {
		return nil, errors.New(path + ": expected a list of posts or an object with a posts field")
	}
	return wrapped.Posts, nil
}

// readCalendar accepts a bare calendar or a calendar-workflow result with a
// "calendar" field.
func readCalendar(path string) (*calendar.Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		Calendar *calendar.Calendar `json:"calendar"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Calendar != nil {
		return wrapped.Calendar, nil
	}
	var cal calendar.Calendar
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cal.Days) == 0 {
		return nil, errors.New(path + ": calendar has no days")
	}
	return &cal, nil
}
