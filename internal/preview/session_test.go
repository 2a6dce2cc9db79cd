package preview

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/platform/locale"
	"github.com/hanko-field/cms/internal/repositories/memory"
	"github.com/hanko-field/cms/internal/services"
)

func testTree() domain.ContentTree {
	return services.BuildContentTree([]domain.ContentEntry{
		{Key: "home.hero.title", Language: "en"},
		{Key: "home.footer.note", Language: "en"},
		{Key: "about.team.lead", Language: "en"},
	})
}

func TestEditorHandlesEditRequest(t *testing.T) {
	editor := NewEditorSession(testTree(), nil)

	editor.HandleEditRequest(EditRequest{Key: "home.hero.title"})
	page, section := editor.Selection()
	require.Equal(t, "home", page)
	require.Equal(t, "hero", section)

	key, ok := editor.ConsumeHighlight()
	require.True(t, ok)
	require.Equal(t, "home.hero.title", key)
	_, ok = editor.ConsumeHighlight()
	require.False(t, ok, "highlight is one-shot")

	editor.HandleEditRequest(EditRequest{Key: "about.unknown.x"})
	page, section = editor.Selection()
	require.Equal(t, "about", page)
	require.Empty(t, section)

	editor.HandleEditRequest(EditRequest{Key: "missing.hero.title"})
	page, _ = editor.Selection()
	require.Equal(t, "about", page, "unknown page keeps the current selection")
}

func TestEditorDirtyTrackingIgnoresPreviewDelivery(t *testing.T) {
	failing := SendFunc(func([]byte) error { return errors.New("no preview frame") })
	editor := NewEditorSession(testTree(), failing)
	editor.Load(map[string]string{"home.hero.title": "Hello"})

	editor.Edit("home.hero.title", "Hello!")
	require.True(t, editor.Dirty("home.hero.title"))
	require.Equal(t, []string{"home.hero.title"}, editor.DirtyKeys())

	editor.Edit("home.hero.title", "Hello")
	require.False(t, editor.Dirty("home.hero.title"))

	editor.Edit("home.hero.title", "Saved")
	editor.MarkSaved("home.hero.title", "Saved")
	require.Empty(t, editor.DirtyKeys())
}

func TestPreviewUpdateLeavesStoreUntouched(t *testing.T) {
	locales, err := locale.NewSet([]string{"en"})
	require.NoError(t, err)
	store := memory.New(memory.WithEntries(domain.ContentEntry{Key: "home.hero.title", Language: "en", Value: "Hello"}))
	content, err := services.NewContentService(services.ContentServiceDeps{Repository: store.Content(), Locales: locales})
	require.NoError(t, err)
	ctx := context.Background()

	dict := content.Resolve(ctx, services.ResolveContentQuery{Language: "en"})
	surface := NewPreviewSurface(dict, nil)
	editor := NewEditorSession(testTree(), func(payload []byte) error {
		surface.HandleMessage(payload)
		return nil
	})

	editor.Edit("home.hero.title", "Hi there")
	value, _ := surface.Value("home.hero.title")
	require.Equal(t, "Hi there", value)

	fresh := content.Resolve(ctx, services.ResolveContentQuery{Language: "en"})
	require.Equal(t, "Hello", fresh["home.hero.title"])

	surface.Reset(fresh)
	value, _ = surface.Value("home.hero.title")
	require.Equal(t, "Hello", value)
}

func TestPreviewSurfaceRequestsEdit(t *testing.T) {
	editor := NewEditorSession(testTree(), nil)
	surface := NewPreviewSurface(domain.EffectiveDictionary{"home.hero.title": "Hello"}, func(payload []byte) error {
		editor.HandleMessage(payload)
		return nil
	})

	surface.RequestEdit("home.footer.note")
	page, section := editor.Selection()
	require.Equal(t, "home", page)
	require.Equal(t, "footer", section)

	surface.HandleMessage([]byte(`{"type":"CMS_EDIT_REQUEST","key":"home.hero.title"}`))
	require.Equal(t, domain.EffectiveDictionary{"home.hero.title": "Hello"}, surface.Snapshot())
}
