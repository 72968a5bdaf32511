package sync

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/identity"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

// NotionSyncer mirrors run records into a Notion lead database, one page per
// identity key.
type NotionSyncer struct {
	Client     notion.Client
	DatabaseID string

	// Retry bounds re-attempts of API calls that fail transiently. The zero
	// value uses the package defaults.
	Retry resilience.RetryConfig
}

func (s *NotionSyncer) retry(op string) resilience.RetryConfig {
	cfg := s.Retry
	cfg.OnRetry = resilience.RetryLogger("notion", op)
	return cfg
}

func (s *NotionSyncer) Name() string { return "notion" }

// Publish creates a page per new lead and updates pages that already carry
// the lead's identity key.
func (s *NotionSyncer) Publish(ctx context.Context, run *model.BatchRun, records []model.LeadRecord) error {
	created, updated := 0, 0

	for _, rec := range records {
		key := string(identity.Normalize(rec))
		props := leadProperties(rec, key)

		page, err := resilience.DoVal(ctx, s.retry("find"), func(ctx context.Context) (*notionapi.Page, error) {
			return notion.FindLeadPage(ctx, s.Client, s.DatabaseID, key)
		})
		if err != nil {
			return err
		}

		if page != nil {
			err := resilience.Do(ctx, s.retry("update"), func(ctx context.Context) error {
				_, err := s.Client.UpdatePage(ctx, string(page.ID), &notionapi.PageUpdateRequest{
					Properties: props,
				})
				return err
			})
			if err != nil {
				return eris.Wrapf(err, "notion sync: update lead %s", key)
			}
			updated++
			continue
		}

		err = resilience.Do(ctx, s.retry("create"), func(ctx context.Context) error {
			_, err := s.Client.CreatePage(ctx, &notionapi.PageCreateRequest{
				Parent: notionapi.Parent{
					Type:       notionapi.ParentTypeDatabaseID,
					DatabaseID: notionapi.DatabaseID(s.DatabaseID),
				},
				Properties: props,
			})
			return err
		})
		if err != nil {
			return eris.Wrapf(err, "notion sync: create lead %s", key)
		}
		created++
	}

	zap.L().Info("notion sync complete",
		zap.String("run_id", run.ID),
		zap.Int("created", created),
		zap.Int("updated", updated),
	)
	return nil
}

func leadProperties(rec model.LeadRecord, key string) notionapi.Properties {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(rec.FullName()),
		},
		"Identity Key": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(key),
		},
		"Company": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(rec.Company),
		},
		"Priority": notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: rec.Priority,
		},
		"Status": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(string(rec.Status)),
		},
	}
	if email := rec.BestEmail(); email != "" {
		props["Email"] = notionapi.EmailProperty{
			Type:  notionapi.PropertyTypeEmail,
			Email: email,
		}
	}
	if rec.Enrichment.Title != "" {
		props["Title"] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(rec.Enrichment.Title),
		}
	}
	if rec.Enrichment.LinkedInURL != "" {
		props["LinkedIn"] = notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  rec.Enrichment.LinkedInURL,
		}
	}
	if len(rec.RuleLabels) > 0 {
		props["Rule Labels"] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(strings.Join(rec.RuleLabels, ", ")),
		}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}
