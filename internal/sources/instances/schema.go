package instances

// File is the top-level structure of instances.yaml.
//
//	instances:
//	  - url: https://cobalt-api.meowing.de
//	  - url: https://cobalt.internal:9000
//	    name: private
type File struct {
	Instances []Entry `yaml:"instances"`
}

// Entry is one upstream instance. Order in the file is the failover order.
type Entry struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name,omitempty"`
}
