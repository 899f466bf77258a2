// Package nmtflow orchestrates requests to a neural machine-translation engine.
//
// A Pipeline sits between callers and a black-box NMT engine. It protects
// URLs, emails, numbers and glossary terms behind reversible markers, keeps
// repeated work out of the decoding path with a direction-aware cache,
// derives decoding budgets that avoid silent truncation, checks that output
// is written in the target alphabet, and reassembles plain text and HTML
// without disturbing their layout.
//
// Basic usage:
//
//	import (
//	    "context"
//	    "github.com/ZaguanLabs/nmtflow"
//	    "github.com/ZaguanLabs/nmtflow/cache"
//	    "github.com/ZaguanLabs/nmtflow/engine"
//	    "github.com/ZaguanLabs/nmtflow/processor"
//	)
//
//	func main() {
//	    e := engine.NewHTTPEngine(engine.HTTPConfig{BaseURL: "http://localhost:8089"})
//	    handle := nmtflow.NewEngineHandle(func(ctx context.Context) (nmtflow.Engine, nmtflow.Tokenizer, error) {
//	        return e, e, e.Ping(ctx)
//	    })
//	    if err := handle.Load(context.Background()); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    lru, _ := cache.NewLRUCache(cache.LRUConfig{Capacity: 1024})
//	    p := nmtflow.NewPipeline(handle,
//	        nmtflow.WithCache(lru),
//	        nmtflow.WithProcessor(processor.NewTextProcessor()),
//	        nmtflow.WithProcessor(processor.NewHTMLProcessor()),
//	    )
//
//	    out, err := p.TranslateTexts(context.Background(), []string{"Hola mundo."},
//	        nmtflow.TranslateOptions{Direction: nmtflow.SpanishToDanish})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(out[0]) // Hej verden.
//	}
package nmtflow
