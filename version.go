package nmtflow

// Version information for nmtflow. Overridable at build time:
//
//	go build -ldflags "-X github.com/ZaguanLabs/nmtflow.GitCommit=$(git rev-parse HEAD)"
const (
	Name        = "nmtflow"
	Description = "Translation orchestration pipeline for neural machine translation engines"
	Version     = "0.1.0"
	Repository  = "https://github.com/ZaguanLabs/nmtflow"
	License     = "MIT"
)

var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// FullVersion returns Version with the short commit appended when known.
func FullVersion() string {
	v := Version
	if GitCommit != "unknown" && GitCommit != "" {
		short := GitCommit
		if len(short) > 7 {
			short = short[:7]
		}
		v += "+" + short
	}
	return v
}

// UserAgent is sent by the HTTP engine client.
func UserAgent() string {
	return Name + "/" + FullVersion()
}
