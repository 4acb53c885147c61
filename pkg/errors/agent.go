package errors

// Missing-collaborator errors returned by constructors before any work is
// attempted. Wrap them in NewError at the call site.

type ErrMissingStorage struct {
	*Error
}

func (err ErrMissingStorage) Error() string {
	return "no storage was provided"
}

type ErrMissingConfig struct {
	*Error
}

func (err ErrMissingConfig) Error() string {
	return "no configuration was provided"
}

type ErrMissingAgent struct {
	*Error
}

func (err ErrMissingAgent) Error() string {
	return "no agent was provided"
}
