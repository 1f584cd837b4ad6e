package ports

// QueryCache is the derived-data cache shared by the session manager and the
// profile loader. Only the session manager may call Reset.
type QueryCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Invalidate(key string)
	Reset()
}
