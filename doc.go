// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package bcnn trains a bilinear AlexNet to embed half-panorama image crops
// with triplet margin loss, and evaluates triplet accuracy.
//
// The network runs on Born: an AlexNet convolutional stack, the AlexNet
// classifier with its last layer replaced by a 512-unit projection, a
// per-sample outer product (bilinear pooling) and a final projection to a
// 512-dimensional embedding.
//
// Example:
//
//	import (
//	    "github.com/born-ml/bcnn"
//	    "github.com/born-ml/born/autodiff"
//	    "github.com/born-ml/born/backend/cpu"
//	)
//
//	func main() {
//	    cfg := bcnn.DefaultConfig()
//	    cfg.DatasetRoot = "/data/SUN360/HalfHalf"
//
//	    report, err := bcnn.Run(ctx, cfg, autodiff.New(cpu.New()), logr.Discard())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(report.Test.Accuracy)
//	}
package bcnn
