package output

// ProfileInfo describes one profile for the list command.
type ProfileInfo struct {
	Name    string
	Parents []string
	Cwd     string
	Env     []string
	Expose  []string
	Address string
}

// ProfileCheck is the validation outcome for one profile.
type ProfileCheck struct {
	Name string
	Err  error
}

// Validation is the outcome of validating a config file.
type Validation struct {
	File     string
	Err      error
	Profiles []ProfileCheck
}

// Valid reports whether the file and all of its profiles passed.
func (v *Validation) Valid() bool {
	if v.Err != nil {
		return false
	}
	for _, p := range v.Profiles {
		if p.Err != nil {
			return false
		}
	}
	return true
}
