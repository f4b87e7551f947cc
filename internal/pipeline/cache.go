package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"emlink/internal/assemble"
	"emlink/internal/diag"
	"emlink/internal/linkcache"
)

// lookupCache computes the cache key of the link and, on a hit, replays the
// cached files through the atomic writer. Cache problems are warnings: the
// link proceeds without the cache.
func (l *linker) lookupCache(ctx context.Context) (linkcache.Digest, bool, error) {
	if l.req.Cache == nil {
		return linkcache.Digest{}, false, nil
	}
	canonical, err := l.st.Canonical()
	if err != nil {
		l.cacheWarning(err)
		return linkcache.Digest{}, false, nil
	}
	key, err := linkcache.Key(ctx, l.input, l.binary, l.tmplSrc, canonical, []byte(filepath.Base(l.req.Output)))
	if err != nil {
		return linkcache.Digest{}, false, err
	}
	payload, ok, err := l.req.Cache.Get(key)
	if err != nil {
		l.cacheWarning(err)
		return key, false, nil
	}
	if !ok {
		return key, false, nil
	}

	dir := filepath.Dir(l.req.Output)
	files := make([]assemble.File, len(payload.Files))
	for i, f := range payload.Files {
		files[i] = assemble.File{Name: filepath.Join(dir, f.Name), Data: f.Data}
	}
	for _, st := range Stages[1 : len(Stages)-1] {
		emit(l.req.Progress, l.req.Input, st, StatusSkipped, nil)
		l.timer.Skip(string(st), "cached")
	}
	if err := l.stage(ctx, StageWrite, func(context.Context) error { return l.write(files) }); err != nil {
		return key, false, err
	}
	for _, w := range payload.Warnings {
		code, msg, _ := strings.Cut(w, " ")
		diag.ReportWarning(l.reporter(StageRead), diag.OutInfo, code, msg).
			WithNote("replayed from the link cache").
			Emit()
	}
	l.res.CacheHit = true
	return key, true, nil
}

// storeCache records a successful link. Names are stored relative to the
// output directory.
func (l *linker) storeCache(key linkcache.Digest, out *assemble.Output) {
	if l.req.Cache == nil || key.IsZero() || out == nil {
		return
	}
	payload := &linkcache.Payload{Files: make([]linkcache.File, len(out.Files))}
	for i, f := range out.Files {
		payload.Files[i] = linkcache.File{Name: filepath.Base(f.Name), Data: f.Data}
	}
	for _, d := range l.bag.Items() {
		if d.Severity == diag.SevWarning {
			payload.Warnings = append(payload.Warnings, d.Code.ID()+" "+d.Message)
		}
	}
	if err := l.req.Cache.Put(key, payload); err != nil {
		l.cacheWarning(err)
	}
}

func (l *linker) cacheWarning(err error) {
	diag.ReportWarning(l.reporter(StageWrite), diag.OutCacheError, l.req.Cache.Dir(), err.Error()).Emit()
}
