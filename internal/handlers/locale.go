package handlers

import (
	"net/http"
	"strings"

	"github.com/hanko-field/cms/internal/platform/locale"
	"github.com/hanko-field/cms/internal/platform/requestctx"
)

const (
	languageQueryParam = "lang"
	regionQueryParam   = "region"
	regionHeader       = "X-Visitor-Region"
)

// LocaleMiddleware stores the visitor locale on the request context. The language comes from
// ?lang when supported, otherwise from Accept-Language. The region comes from ?region or the
// X-Visitor-Region header set by the edge.
func LocaleMiddleware(set *locale.Set) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := requestLocale(set, r)
			next.ServeHTTP(w, r.WithContext(requestctx.WithLocale(r.Context(), loc)))
		})
	}
}

func requestLocale(set *locale.Set, r *http.Request) requestctx.Locale {
	query := r.URL.Query()
	lang := strings.TrimSpace(query.Get(languageQueryParam))
	switch {
	case lang != "" && set.Supports(lang):
		lang = locale.NormalizeLanguage(lang)
	case r.Header.Get("Accept-Language") != "":
		lang = set.Match(r.Header.Get("Accept-Language"))
	default:
		lang = set.Fallback()
	}

	region := query.Get(regionQueryParam)
	if strings.TrimSpace(region) == "" {
		region = r.Header.Get(regionHeader)
	}
	return requestctx.Locale{Language: lang, Region: locale.RegionPtr(region)}
}

// localeFromRequest reads the middleware result, falling back to a fresh parse when the
// middleware was not installed.
func localeFromRequest(set *locale.Set, r *http.Request) requestctx.Locale {
	if loc, ok := requestctx.LocaleFrom(r.Context()); ok {
		return loc
	}
	return requestLocale(set, r)
}
