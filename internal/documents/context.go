package documents

import "context"

type contextKey string

const documentCtxKey contextKey = "document"

func SetDocumentInContext(ctx context.Context, d *Document) context.Context {
	return context.WithValue(ctx, documentCtxKey, d)
}

func GetDocumentFromContext(ctx context.Context) *Document {
	d, _ := ctx.Value(documentCtxKey).(*Document)
	return d
}
