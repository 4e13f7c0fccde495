package pathtemplate

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

type TemplateSuite struct {
	suite.Suite
}

func (s *TemplateSuite) TestParse() {
	t, err := Parse("/rooms/{room}/users/{user}/")
	s.Require().NoError(err)
	s.Equal("/rooms/{room}/users/{user}", t.String())
	s.Equal([]string{"room", "user"}, t.ParameterNames())

	root, err := Parse("/")
	s.Require().NoError(err)
	s.Equal("/", root.String())
	s.Empty(root.ParameterNames())

	for _, bad := range []string{"", "rooms", "/a//b", "/{}", "/{a}/{a}", "/a{b}", "/{a{b}}"} {
		_, err := Parse(bad)
		s.ErrorIs(err, merr.ErrPathTemplateInvalid, bad)
	}
	s.Panics(func() { MustParse("bad") })
}

func (s *TemplateSuite) TestMatch() {
	t := MustParse("/rooms/{room}/users/{user}")
	params, ok := t.Match("/rooms/lobby/users/42")
	s.True(ok)
	s.Equal(map[string]string{"room": "lobby", "user": "42"}, params)

	_, ok = t.Match("/rooms/lobby/users")
	s.False(ok)
	_, ok = t.Match("/rooms//users/42")
	s.False(ok)
	_, ok = t.Match("/halls/lobby/users/42")
	s.False(ok)
	_, ok = t.Match("rooms/lobby/users/42")
	s.False(ok)

	params, ok = MustParse("/").Match("/")
	s.True(ok)
	s.Empty(params)
}

func (s *TemplateSuite) TestOverlaps() {
	cases := []struct {
		a, b    string
		overlap bool
	}{
		{"/a/b", "/a/b", true},
		{"/a/{x}", "/a/b", true},
		{"/a/{x}", "/a/{y}", true},
		{"/{x}/b", "/a/{y}", true},
		{"/a/b", "/a/c", false},
		{"/a/{x}", "/a/{x}/c", false},
		{"/", "/a", false},
		{"/{x}/b", "/{y}/c", false},
	}
	for _, c := range cases {
		a, b := MustParse(c.a), MustParse(c.b)
		s.Equal(c.overlap, a.Overlaps(b), fmt.Sprintf("%s vs %s", c.a, c.b))
		s.Equal(c.overlap, b.Overlaps(a), fmt.Sprintf("%s vs %s", c.b, c.a))
	}
}

func (s *TemplateSuite) TestCompare() {
	s.Equal(-1, MustParse("/a").Compare(MustParse("/a/b")))
	s.Equal(-1, MustParse("/a/b").Compare(MustParse("/a/{x}")))
	s.Equal(1, MustParse("/a/{x}").Compare(MustParse("/a/b")))
	s.Equal(0, MustParse("/a/{x}").Compare(MustParse("/a/{y}")))
	s.Equal(-1, MustParse("/a/b").Compare(MustParse("/a/c")))
}

func (s *TemplateSuite) TestSetRejectsOverlapAtomically() {
	set := NewSet()
	_, ok := set.Add(MustParse("/chat/{room}"))
	s.True(ok)
	_, ok = set.Add(MustParse("/echo"))
	s.True(ok)

	before := set.Templates()
	conflict, ok := set.Add(MustParse("/chat/general"))
	s.False(ok)
	s.Equal("/chat/{room}", conflict.String())
	s.Equal(before, set.Templates())
	s.Equal(2, set.Len())

	tpl, params, ok := set.Match("/chat/general")
	s.True(ok)
	s.Equal("/chat/{room}", tpl.String())
	s.Equal("general", params["room"])

	_, _, ok = set.Match("/missing")
	s.False(ok)

	s.True(set.Remove(MustParse("/chat/{room}")))
	s.False(set.Remove(MustParse("/chat/{room}")))
	_, ok = set.Add(MustParse("/chat/general"))
	s.True(ok)
}

func (s *TemplateSuite) TestSetNoPairwiseOverlap() {
	set := NewSet()
	paths := []string{"/a", "/a/{x}", "/a/b", "/{x}", "/b/{y}", "/b/c", "/{x}/{y}", "/c/d/e"}
	wg := sync.WaitGroup{}
	for _, p := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			set.Add(MustParse(p))
		}(p)
	}
	wg.Wait()

	all := set.Templates()
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			s.False(all[i].Overlaps(all[j]), "%s overlaps %s", all[i], all[j])
		}
		if i > 0 {
			s.LessOrEqual(all[i-1].Compare(all[i]), 0)
		}
	}
}

func TestTemplate(t *testing.T) {
	suite.Run(t, new(TemplateSuite))
}
