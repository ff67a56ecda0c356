package comics

import (
	"context"
	"encoding/base64"
	"errors"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelpanel-server/modules/common/model"
	"pixelpanel-server/modules/panel"
)

func TestSaveComic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.service.SaveComic(ctx, "u1", SaveComicRequest{
		Title: "Night Watch",
		Panels: []PanelInput{
			{ID: 2, Prompt: "the owl lands", ImageData: "data:image/png;base64," + pngB64(t), Narration: strPtr("It lands."),
				AudioData: base64.StdEncoding.EncodeToString([]byte("mp3"))},
			{ID: 1, Prompt: "an owl in the sky", ImageData: pngB64(t), IsZoomed: true},
		},
		ThumbnailData: pngB64(t),
		IsPublic:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "comic-1", resp.ComicID)
	require.NotNil(t, resp.CompositePublicURL)
	assert.Equal(t, testBaseURL+"users/u1/comics/comic-1/comic_full.webp", *resp.CompositePublicURL)

	assert.Equal(t, []string{
		"users/u1/comics/comic-1/audio/panel_2.mp3",
		"users/u1/comics/comic-1/comic_full.webp",
		"users/u1/comics/comic-1/panel_0.webp",
		"users/u1/comics/comic-1/panel_1.webp",
		"users/u1/comics/comic-1/panel_2.webp",
	}, f.objects.paths())

	comic, err := f.store.GetComicForUser(ctx, "comic-1", "u1")
	require.NoError(t, err)
	assert.True(t, comic.IsPublic)
	require.NotNil(t, comic.CompositeURL)
	require.Len(t, comic.Panels, 3)

	cover := comic.Panels[0]
	assert.Equal(t, model.CoverPanelNumber, cover.PanelNumber)
	assert.Equal(t, "Comic book cover art featuring: an owl in the sky, the owl lands", cover.PromptText())

	assert.Equal(t, 1, comic.Panels[1].PanelNumber)
	assert.True(t, comic.Panels[1].IsZoomed)
	assert.Nil(t, comic.Panels[1].AudioURL)

	second := comic.Panels[2]
	assert.Equal(t, "It lands.", second.NarrationText())
	require.NotNil(t, second.AudioURL)
	assert.Equal(t, testBaseURL+"users/u1/comics/comic-1/audio/panel_2.mp3", *second.AudioURL)
}

func TestSaveComicValidation(t *testing.T) {
	valid := func(t *testing.T) []PanelInput {
		return []PanelInput{{ID: 1, Prompt: "p", ImageData: pngB64(t)}}
	}

	tests := []struct {
		name    string
		req     func(t *testing.T) SaveComicRequest
		wantErr error
	}{
		{"missing title", func(t *testing.T) SaveComicRequest {
			return SaveComicRequest{Title: "  ", Panels: valid(t)}
		}, ErrMissingField},
		{"missing panels", func(t *testing.T) SaveComicRequest {
			return SaveComicRequest{Title: "T"}
		}, ErrMissingField},
		{"not an image", func(t *testing.T) SaveComicRequest {
			return SaveComicRequest{Title: "T", Panels: []PanelInput{{ID: 1, ImageData: base64.StdEncoding.EncodeToString([]byte("text"))}}}
		}, ErrInvalidPanelData},
		{"truncated image", func(t *testing.T) SaveComicRequest {
			truncated := pngBytes(t, 16, 16, color.White)[:45]
			return SaveComicRequest{Title: "T", Panels: []PanelInput{{ID: 1, ImageData: base64.StdEncoding.EncodeToString(truncated)}}}
		}, ErrInvalidPanelData},
		{"duplicate ids", func(t *testing.T) SaveComicRequest {
			return SaveComicRequest{Title: "T", Panels: append(valid(t), valid(t)...)}
		}, ErrInvalidPanelData},
		{"cover id", func(t *testing.T) SaveComicRequest {
			return SaveComicRequest{Title: "T", Panels: []PanelInput{{ID: 0, ImageData: pngB64(t)}}}
		}, ErrInvalidPanelData},
		{"no images at all", func(t *testing.T) SaveComicRequest {
			return SaveComicRequest{Title: "T", Panels: []PanelInput{{ID: 1, Prompt: "p"}}}
		}, ErrInvalidPanelData},
		{"bad thumbnail", func(t *testing.T) SaveComicRequest {
			return SaveComicRequest{Title: "T", Panels: valid(t), ThumbnailData: "!!!"}
		}, ErrInvalidPanelData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service.SaveComic(context.Background(), "u1", tt.req(t))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.store.comics)
			assert.Empty(t, f.objects.paths())
		})
	}
}

func TestSaveComicLegacyFields(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.SaveComic(context.Background(), "u1", SaveComicRequest{
		ComicTitle: "Old Client",
		PanelsData: []PanelInput{{ID: 1, LargeCanvasData: pngB64(t)}},
	})
	require.NoError(t, err)

	comic, err := f.store.GetComicForUser(context.Background(), resp.ComicID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Old Client", comic.Title)
	require.Len(t, comic.Panels, 1)
	assert.Equal(t, "Panel 1", comic.Panels[0].PromptText())
}

func TestSaveComicRollsBackOnUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.objects.failOn = "panel_2"

	_, err := f.service.SaveComic(context.Background(), "u1", SaveComicRequest{
		Title: "Broken",
		Panels: []PanelInput{
			{ID: 1, ImageData: pngB64(t)},
			{ID: 2, ImageData: pngB64(t)},
		},
	})
	require.Error(t, err)

	assert.Empty(t, f.store.comics)
	assert.ElementsMatch(t, f.objects.paths(), f.objects.removed)
}

func TestSaveComicRollsBackOnInsertFailure(t *testing.T) {
	f := newFixture(t)
	f.store.insertErr = errors.New("db down")

	_, err := f.service.SaveComic(context.Background(), "u1", SaveComicRequest{
		Title:  "T",
		Panels: []PanelInput{{ID: 1, ImageData: pngB64(t)}},
	})
	require.Error(t, err)
	assert.Empty(t, f.store.comics)
	assert.Contains(t, f.objects.removed, "users/u1/comics/comic-1/panel_1.webp")
}

func TestUpdatePanel(t *testing.T) {
	f := newFixture(t)
	f.store.addComic("c1", "u1", "T", model.ComicPanel{ID: "p2", PanelNumber: 2})

	speed := 1.2
	resp, err := f.service.UpdatePanel(context.Background(), "u1", "p2", UpdatePanelRequest{
		Narration:       strPtr("The storm breaks."),
		Speed:           &speed,
		RegenerateAudio: true,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.AudioURL)
	assert.Equal(t, testBaseURL+"users/u1/comics/c1/audio/panel_2.mp3", *resp.AudioURL)
	assert.InDelta(t, 0.71, f.voice.settings.Stability, 1e-9)
	assert.Equal(t, []int{1}, f.ledger.deducted)

	p, _ := f.store.GetPanel(context.Background(), "p2")
	assert.Equal(t, "The storm breaks.", p.NarrationText())
	assert.Equal(t, *resp.AudioURL, *p.AudioURL)
}

func TestUpdatePanelErrors(t *testing.T) {
	f := newFixture(t)
	f.store.addComic("c1", "owner", "T", model.ComicPanel{ID: "p1", PanelNumber: 1})

	_, err := f.service.UpdatePanel(context.Background(), "owner", "p1", UpdatePanelRequest{})
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = f.service.UpdatePanel(context.Background(), "owner", "nope", UpdatePanelRequest{Prompt: strPtr("x")})
	assert.ErrorIs(t, err, ErrPanelNotFound)

	_, err = f.service.UpdatePanel(context.Background(), "intruder", "p1", UpdatePanelRequest{Prompt: strPtr("x")})
	assert.ErrorIs(t, err, ErrForbidden)

	slow := 0.5
	_, err = f.service.UpdatePanel(context.Background(), "owner", "p1", UpdatePanelRequest{Narration: strPtr("x"), Speed: &slow, RegenerateAudio: true})
	assert.ErrorIs(t, err, ErrInvalidSpeed)

	f.ledger.balance = 0
	_, err = f.service.UpdatePanel(context.Background(), "owner", "p1", UpdatePanelRequest{Narration: strPtr("x"), RegenerateAudio: true})
	assert.ErrorIs(t, err, panel.ErrInsufficientCredits)
	assert.Zero(t, f.voice.calls)
}

func TestUpdatePanelKeepsTextWhenAudioFails(t *testing.T) {
	f := newFixture(t)
	f.voice.err = errors.New("provider down")
	f.store.addComic("c1", "u1", "T", model.ComicPanel{ID: "p1", PanelNumber: 1})

	resp, err := f.service.UpdatePanel(context.Background(), "u1", "p1", UpdatePanelRequest{
		Narration:       strPtr("Quiet."),
		RegenerateAudio: true,
	})
	require.NoError(t, err)
	assert.Nil(t, resp.AudioURL)
	assert.Empty(t, f.ledger.deducted)

	p, _ := f.store.GetPanel(context.Background(), "p1")
	assert.Equal(t, "Quiet.", p.NarrationText())
}

func TestRegeneratePanelInfersContextFromPreviousPanel(t *testing.T) {
	f := newFixture(t)
	prevImage := pngBytes(t, 4, 3, color.Black)
	f.objects.downloads[testBaseURL+"panel_1.webp"] = prevImage
	f.store.addComic("c1", "u1", "T",
		model.ComicPanel{ID: "p1", PanelNumber: 1, Prompt: strPtr("a fox at the gate"), PublicURL: testBaseURL + "panel_1.webp"},
		model.ComicPanel{ID: "p2", PanelNumber: 2, Prompt: strPtr("old"), StoragePath: "users/u1/comics/c1/panel_2.webp"},
	)

	resp, err := f.service.RegeneratePanel(context.Background(), "u1", "p2", RegenerateRequest{TextPrompt: "the fox slips through"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.PublicURL, "users/u1/comics/c1/panel_2_regenerated_")

	require.NotNil(t, f.gen.gotReq.PreviousPanelContext)
	assert.Equal(t, "a fox at the gate", f.gen.gotReq.PreviousPanelContext.Prompt)
	assert.Equal(t, base64.StdEncoding.EncodeToString(prevImage), f.gen.gotReq.PreviousPanelContext.ImageData)
	assert.Equal(t, "the fox slips through", f.gen.gotReq.TextPrompt)
	assert.False(t, f.gen.gotReq.IsThumbnail)

	p, _ := f.store.GetPanel(context.Background(), "p2")
	assert.Equal(t, "the fox slips through", p.PromptText())
	assert.Equal(t, resp.PublicURL, p.PublicURL)
	assert.Contains(t, f.objects.removed, "users/u1/comics/c1/panel_2.webp")
}

func TestRegeneratePanelContextSources(t *testing.T) {
	t.Run("explicit url is fetched", func(t *testing.T) {
		f := newFixture(t)
		img := pngBytes(t, 2, 2, color.White)
		f.objects.downloads[testBaseURL+"ctx.png"] = img
		f.store.addComic("c1", "u1", "T", model.ComicPanel{ID: "p3", PanelNumber: 3})

		_, err := f.service.RegeneratePanel(context.Background(), "u1", "p3", RegenerateRequest{
			TextPrompt:           "next",
			PreviousPanelContext: &panel.PanelContext{Prompt: "before", ImageData: testBaseURL + "ctx.png"},
		})
		require.NoError(t, err)
		require.NotNil(t, f.gen.gotReq.PreviousPanelContext)
		assert.Equal(t, base64.StdEncoding.EncodeToString(img), f.gen.gotReq.PreviousPanelContext.ImageData)
	})

	t.Run("unreachable url drops context", func(t *testing.T) {
		f := newFixture(t)
		f.store.addComic("c1", "u1", "T", model.ComicPanel{ID: "p3", PanelNumber: 3})

		_, err := f.service.RegeneratePanel(context.Background(), "u1", "p3", RegenerateRequest{
			TextPrompt:           "next",
			PreviousPanelContext: &panel.PanelContext{Prompt: "before", ImageData: testBaseURL + "missing.png"},
		})
		require.NoError(t, err)
		assert.Nil(t, f.gen.gotReq.PreviousPanelContext)
	})

	t.Run("foreign url is never fetched", func(t *testing.T) {
		tests := []struct {
			name string
			url  string
		}{
			{"metadata endpoint", "http://169.254.169.254/latest/meta-data/iam/"},
			{"internal service", "http://localhost:8080/admin"},
			{"other bucket", "https://proj.supabase.co/storage/v1/object/public/Private/secret.png"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)
				f.objects.downloads[tt.url] = pngBytes(t, 2, 2, color.White)
				f.store.addComic("c1", "u1", "T", model.ComicPanel{ID: "p3", PanelNumber: 3})

				_, err := f.service.RegeneratePanel(context.Background(), "u1", "p3", RegenerateRequest{
					TextPrompt:           "next",
					PreviousPanelContext: &panel.PanelContext{Prompt: "before", ImageData: tt.url},
				})
				require.NoError(t, err)
				assert.Nil(t, f.gen.gotReq.PreviousPanelContext)
				assert.Empty(t, f.objects.fetched)
			})
		}
	})

	t.Run("previous panel without prompt", func(t *testing.T) {
		f := newFixture(t)
		f.objects.downloads[testBaseURL+"p1"] = pngBytes(t, 2, 2, color.White)
		f.store.addComic("c1", "u1", "T",
			model.ComicPanel{ID: "p1", PanelNumber: 1, PublicURL: testBaseURL + "p1"},
			model.ComicPanel{ID: "p2", PanelNumber: 2},
		)

		_, err := f.service.RegeneratePanel(context.Background(), "u1", "p2", RegenerateRequest{TextPrompt: "next"})
		require.NoError(t, err)
		assert.Nil(t, f.gen.gotReq.PreviousPanelContext)
	})

	t.Run("cover regenerates as thumbnail", func(t *testing.T) {
		f := newFixture(t)
		f.store.addComic("c1", "u1", "T", model.ComicPanel{ID: "p0", PanelNumber: 0})

		_, err := f.service.RegeneratePanel(context.Background(), "u1", "p0", RegenerateRequest{
			TextPrompt:           "new cover",
			PreviousPanelContext: &panel.PanelContext{Prompt: "x", ImageData: testBaseURL + "x"},
		})
		require.NoError(t, err)
		assert.True(t, f.gen.gotReq.IsThumbnail)
		assert.Nil(t, f.gen.gotReq.PreviousPanelContext)
	})
}

func TestRegeneratePanelErrors(t *testing.T) {
	f := newFixture(t)
	f.store.addComic("c1", "owner", "T", model.ComicPanel{ID: "p1", PanelNumber: 1})

	_, err := f.service.RegeneratePanel(context.Background(), "owner", "p1", RegenerateRequest{TextPrompt: " "})
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = f.service.RegeneratePanel(context.Background(), "intruder", "p1", RegenerateRequest{TextPrompt: "x"})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, f.gen.calls)

	f.gen.err = panel.ErrInsufficientCredits
	_, err = f.service.RegeneratePanel(context.Background(), "owner", "p1", RegenerateRequest{TextPrompt: "x"})
	assert.ErrorIs(t, err, panel.ErrInsufficientCredits)
	assert.Empty(t, f.objects.paths())
}

func TestValidatePublishable(t *testing.T) {
	cover := model.ComicPanel{PanelNumber: 0}
	narrated := model.ComicPanel{PanelNumber: 1, Narration: strPtr("Once.")}
	silent := model.ComicPanel{PanelNumber: 2, Narration: strPtr("  ")}

	tests := []struct {
		name   string
		comic  model.Comic
		reason string
	}{
		{"complete", model.Comic{Title: "T", Panels: []model.ComicPanel{cover, narrated}}, ""},
		{"no title", model.Comic{Title: " ", Panels: []model.ComicPanel{cover, narrated}}, "Comic title is required"},
		{"missing narration", model.Comic{Title: "T", Panels: []model.ComicPanel{cover, narrated, silent}}, "All panels must have narrations"},
		{"no cover", model.Comic{Title: "T", Panels: []model.ComicPanel{narrated}}, "Comic thumbnail is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePublishable(&tt.comic)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			var pe *PublishError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.reason, pe.Reason)
			assert.ErrorIs(t, err, ErrPublishIncomplete)
		})
	}
}

func TestUpdateVisibility(t *testing.T) {
	f := newFixture(t)
	f.store.addComic("c1", "u1", "T",
		model.ComicPanel{ID: "p0", PanelNumber: 0},
		model.ComicPanel{ID: "p1", PanelNumber: 1, Narration: strPtr("Hi.")},
	)
	f.store.addComic("c2", "u1", "Draft", model.ComicPanel{ID: "q1", PanelNumber: 1})

	require.NoError(t, f.service.UpdateVisibility(context.Background(), "u1", "c1", true))
	assert.True(t, f.store.comics["c1"].IsPublic)

	assert.ErrorIs(t, f.service.UpdateVisibility(context.Background(), "u1", "c2", true), ErrPublishIncomplete)
	require.NoError(t, f.service.UpdateVisibility(context.Background(), "u1", "c2", false))

	assert.ErrorIs(t, f.service.UpdateVisibility(context.Background(), "u2", "c1", false), ErrComicNotFound)
}

func TestDeleteComic(t *testing.T) {
	f := newFixture(t)
	f.store.addComic("c1", "u1", "T",
		model.ComicPanel{ID: "p0", PanelNumber: 0, StoragePath: "users/u1/comics/c1/panel_0.webp"},
		model.ComicPanel{ID: "p1", PanelNumber: 1, StoragePath: "users/u1/comics/c1/panel_1.webp",
			AudioURL: strPtr(testBaseURL + "users/u1/comics/c1/audio/panel_1.mp3")},
	)
	f.store.comics["c1"].CompositeURL = strPtr(testBaseURL + "users/u1/comics/c1/comic_full.webp")

	assert.ErrorIs(t, f.service.DeleteComic(context.Background(), "u2", "c1"), ErrComicNotFound)

	require.NoError(t, f.service.DeleteComic(context.Background(), "u1", "c1"))
	assert.ElementsMatch(t, []string{
		"users/u1/comics/c1/panel_0.webp",
		"users/u1/comics/c1/panel_1.webp",
		"users/u1/comics/c1/audio/panel_1.mp3",
		"users/u1/comics/c1/comic_full.webp",
	}, f.objects.removed)
	assert.Empty(t, f.store.comics)
	assert.Empty(t, f.store.panels)
}

func TestListComicsSortsPanels(t *testing.T) {
	f := newFixture(t)
	f.store.addComic("c1", "u1", "T",
		model.ComicPanel{ID: "b", PanelNumber: 2},
		model.ComicPanel{ID: "a", PanelNumber: 0},
		model.ComicPanel{ID: "c", PanelNumber: 1},
	)
	f.store.comics["c1"].IsPublic = true

	comics, err := f.service.ListPublicComics(context.Background())
	require.NoError(t, err)
	require.Len(t, comics, 1)
	var numbers []int
	for _, p := range comics[0].Panels {
		numbers = append(numbers, p.PanelNumber)
	}
	assert.Equal(t, []int{0, 1, 2}, numbers)
}
