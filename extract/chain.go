package extract

import (
	"context"
	"errors"
)

// Chain tries each extractor in order; the first to succeed wins.
// Extractors returning ErrUnsupported are skipped silently.
type Chain []Extractor

func (c Chain) TextLayer(ctx context.Context, src Source) (string, error) {
	return c.first(ctx, func(e Extractor) (string, error) { return e.TextLayer(ctx, src) })
}

func (c Chain) OCR(ctx context.Context, src Source) (string, error) {
	return c.first(ctx, func(e Extractor) (string, error) { return e.OCR(ctx, src) })
}

// PageCount asks each extractor that can count pages.
func (c Chain) PageCount(ctx context.Context, src Source) (int, error) {
	var errs []error
	for _, e := range c {
		pc, ok := e.(PageCounter)
		if !ok {
			continue
		}
		n, err := pc.PageCount(ctx, src)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, ErrUnsupported) {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return 0, ErrUnsupported
	}
	return 0, errors.Join(errs...)
}

func (c Chain) first(ctx context.Context, call func(Extractor) (string, error)) (string, error) {
	var errs []error
	for _, e := range c {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := call(e)
		if err == nil && MeaningfulLength(text) > 0 {
			return text, nil
		}
		if err == nil {
			err = ErrNoText
		}
		if !errors.Is(err, ErrUnsupported) {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return "", ErrUnsupported
	}
	return "", errors.Join(errs...)
}
